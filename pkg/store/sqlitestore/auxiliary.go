package sqlitestore

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/stewart-y/photopipeline/pkg/errx"
	"github.com/stewart-y/photopipeline/pkg/store"
)

// --- Settings ---------------------------------------------------------

func (s *Store) GetSetting(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.GetContext(ctx, &value, `SELECT value FROM settings WHERE key = ?`, key)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, errx.Wrap(errx.StorageFailed, "get setting", err)
	}
	return value, true, nil
}

func (s *Store) SetSetting(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, now())
	if err != nil {
		return errx.Wrap(errx.StorageFailed, "set setting", err)
	}
	return nil
}

func (s *Store) ListSettings(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM settings`)
	if err != nil {
		return nil, errx.Wrap(errx.StorageFailed, "list settings", err)
	}
	defer rows.Close()

	out := map[string]string{}
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, err
		}
		out[k] = v
	}
	return out, nil
}

// --- Templates ----------------------------------------------------------

type templateRow struct {
	ID        string `db:"id"`
	Name      string `db:"name"`
	Status    string `db:"status"`
	Prompt    string `db:"prompt"`
	CreatedAt string `db:"created_at"`
	UpdatedAt string `db:"updated_at"`
}

type templateAssetRow struct {
	ID         string `db:"id"`
	TemplateID string `db:"template_id"`
	Key        string `db:"key"`
	Width      int    `db:"width"`
	Height     int    `db:"height"`
	Selected   bool   `db:"selected"`
}

func (s *Store) CreateTemplate(ctx context.Context, name, prompt string) (store.Template, error) {
	id := uuid.NewString()
	ts := now()
	_, err := s.db.ExecContext(ctx, `INSERT INTO background_templates (id, name, status, prompt, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`, id, name, store.TemplateGenerating, prompt, ts, ts)
	if err != nil {
		return store.Template{}, errx.Wrap(errx.StorageFailed, "create template", err)
	}
	tpl, _, err := s.GetTemplate(ctx, id)
	return tpl, err
}

func (s *Store) GetTemplate(ctx context.Context, id string) (store.Template, bool, error) {
	var row templateRow
	err := s.db.GetContext(ctx, &row, `SELECT * FROM background_templates WHERE id = ?`, id)
	if err == sql.ErrNoRows {
		return store.Template{}, false, nil
	}
	if err != nil {
		return store.Template{}, false, errx.Wrap(errx.StorageFailed, "get template", err)
	}

	var assetRows []templateAssetRow
	if err := s.db.SelectContext(ctx, &assetRows, `SELECT * FROM template_assets WHERE template_id = ?`, id); err != nil {
		return store.Template{}, false, errx.Wrap(errx.StorageFailed, "get template assets", err)
	}

	tpl, err := toTemplate(row, assetRows)
	return tpl, true, err
}

func (s *Store) ListTemplates(ctx context.Context) ([]store.Template, error) {
	var rows []templateRow
	if err := s.db.SelectContext(ctx, &rows, `SELECT * FROM background_templates ORDER BY created_at DESC`); err != nil {
		return nil, errx.Wrap(errx.StorageFailed, "list templates", err)
	}

	out := make([]store.Template, 0, len(rows))
	for _, r := range rows {
		var assetRows []templateAssetRow
		if err := s.db.SelectContext(ctx, &assetRows, `SELECT * FROM template_assets WHERE template_id = ?`, r.ID); err != nil {
			return nil, errx.Wrap(errx.StorageFailed, "list template assets", err)
		}
		tpl, err := toTemplate(r, assetRows)
		if err != nil {
			return nil, err
		}
		out = append(out, tpl)
	}
	return out, nil
}

func (s *Store) SetTemplateStatus(ctx context.Context, id string, status store.TemplateStatus) (store.Template, error) {
	_, err := s.db.ExecContext(ctx, `UPDATE background_templates SET status = ?, updated_at = ? WHERE id = ?`, status, now(), id)
	if err != nil {
		return store.Template{}, errx.Wrap(errx.StorageFailed, "set template status", err)
	}
	tpl, _, err := s.GetTemplate(ctx, id)
	return tpl, err
}

func (s *Store) AddTemplateAsset(ctx context.Context, templateID, key string, width, height int) (store.TemplateAsset, error) {
	id := uuid.NewString()
	_, err := s.db.ExecContext(ctx, `INSERT INTO template_assets (id, template_id, key, width, height, selected)
		VALUES (?, ?, ?, ?, ?, 0)`, id, templateID, key, width, height)
	if err != nil {
		return store.TemplateAsset{}, errx.Wrap(errx.StorageFailed, "add template asset", err)
	}
	return store.TemplateAsset{ID: id, TemplateID: templateID, Key: key, Width: width, Height: height}, nil
}

func (s *Store) SelectTemplateAsset(ctx context.Context, templateID, assetID string) error {
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, `UPDATE template_assets SET selected = 0 WHERE template_id = ?`, templateID); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, `UPDATE template_assets SET selected = 1 WHERE id = ? AND template_id = ?`, assetID, templateID)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return errx.New(errx.Unknown, "template asset not found")
		}
		return nil
	})
}

func (s *Store) ActiveTemplate(ctx context.Context) (store.Template, bool, error) {
	var row templateRow
	err := s.db.GetContext(ctx, &row, `SELECT * FROM background_templates WHERE status = ? ORDER BY updated_at DESC LIMIT 1`, store.TemplateActive)
	if err == sql.ErrNoRows {
		return store.Template{}, false, nil
	}
	if err != nil {
		return store.Template{}, false, errx.Wrap(errx.StorageFailed, "active template", err)
	}
	var assetRows []templateAssetRow
	if err := s.db.SelectContext(ctx, &assetRows, `SELECT * FROM template_assets WHERE template_id = ?`, row.ID); err != nil {
		return store.Template{}, false, errx.Wrap(errx.StorageFailed, "active template assets", err)
	}
	tpl, err := toTemplate(row, assetRows)
	return tpl, true, err
}

func toTemplate(row templateRow, assetRows []templateAssetRow) (store.Template, error) {
	createdAt, err := time.Parse(rfc3339, row.CreatedAt)
	if err != nil {
		return store.Template{}, err
	}
	updatedAt, err := time.Parse(rfc3339, row.UpdatedAt)
	if err != nil {
		return store.Template{}, err
	}
	assets := make([]store.TemplateAsset, len(assetRows))
	for i, a := range assetRows {
		assets[i] = store.TemplateAsset{ID: a.ID, TemplateID: a.TemplateID, Key: a.Key, Width: a.Width, Height: a.Height, Selected: a.Selected}
	}
	return store.Template{
		ID: row.ID, Name: row.Name, Status: store.TemplateStatus(row.Status), Prompt: row.Prompt,
		Assets: assets, CreatedAt: createdAt, UpdatedAt: updatedAt,
	}, nil
}

// --- SkuMap ---------------------------------------------------------------

type skuMapRow struct {
	SKU        string `db:"sku"`
	ProductID  string `db:"product_id"`
	Handle     string `db:"handle"`
	LastSyncAt string `db:"last_sync_at"`
}

func (s *Store) GetSkuProduct(ctx context.Context, sku string) (store.SkuProductMap, bool, error) {
	var row skuMapRow
	err := s.db.GetContext(ctx, &row, `SELECT * FROM shopify_map WHERE sku = ?`, sku)
	if err == sql.ErrNoRows {
		return store.SkuProductMap{}, false, nil
	}
	if err != nil {
		return store.SkuProductMap{}, false, errx.Wrap(errx.StorageFailed, "get sku product", err)
	}
	lastSync, err := time.Parse(rfc3339, row.LastSyncAt)
	if err != nil {
		return store.SkuProductMap{}, false, err
	}
	return store.SkuProductMap{SKU: row.SKU, ProductID: row.ProductID, Handle: row.Handle, LastSyncAt: lastSync}, true, nil
}

func (s *Store) UpsertSkuProduct(ctx context.Context, sku, productID, handle string) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO shopify_map (sku, product_id, handle, last_sync_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(sku) DO UPDATE SET product_id = excluded.product_id, handle = excluded.handle, last_sync_at = excluded.last_sync_at`,
		sku, productID, handle, now())
	if err != nil {
		return errx.Wrap(errx.StorageFailed, "upsert sku product", err)
	}
	return nil
}

// --- Prompts --------------------------------------------------------------

type promptRow struct {
	ID        string `db:"id"`
	Name      string `db:"name"`
	Text      string `db:"text"`
	IsDefault bool   `db:"is_default"`
}

func (s *Store) ListPrompts(ctx context.Context) ([]store.CustomPrompt, error) {
	var rows []promptRow
	if err := s.db.SelectContext(ctx, &rows, `SELECT * FROM custom_prompts ORDER BY name ASC`); err != nil {
		return nil, errx.Wrap(errx.StorageFailed, "list prompts", err)
	}
	out := make([]store.CustomPrompt, len(rows))
	for i, r := range rows {
		out[i] = store.CustomPrompt{ID: r.ID, Name: r.Name, Text: r.Text, IsDefault: r.IsDefault}
	}
	return out, nil
}

func (s *Store) CreatePrompt(ctx context.Context, name, text string) (store.CustomPrompt, error) {
	id := uuid.NewString()
	_, err := s.db.ExecContext(ctx, `INSERT INTO custom_prompts (id, name, text, is_default) VALUES (?, ?, ?, 0)`, id, name, text)
	if err != nil {
		return store.CustomPrompt{}, errx.Wrap(errx.StorageFailed, "create prompt", err)
	}
	return store.CustomPrompt{ID: id, Name: name, Text: text}, nil
}

func (s *Store) UpdatePrompt(ctx context.Context, id, name, text string) (store.CustomPrompt, error) {
	_, err := s.db.ExecContext(ctx, `UPDATE custom_prompts SET name = ?, text = ? WHERE id = ?`, name, text, id)
	if err != nil {
		return store.CustomPrompt{}, errx.Wrap(errx.StorageFailed, "update prompt", err)
	}
	var row promptRow
	if err := s.db.GetContext(ctx, &row, `SELECT * FROM custom_prompts WHERE id = ?`, id); err != nil {
		return store.CustomPrompt{}, errx.Wrap(errx.StorageFailed, "reread prompt", err)
	}
	return store.CustomPrompt{ID: row.ID, Name: row.Name, Text: row.Text, IsDefault: row.IsDefault}, nil
}

func (s *Store) DeletePrompt(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM custom_prompts WHERE id = ?`, id)
	if err != nil {
		return errx.Wrap(errx.StorageFailed, "delete prompt", err)
	}
	return nil
}

func (s *Store) DefaultPrompt(ctx context.Context) (store.CustomPrompt, bool, error) {
	var row promptRow
	err := s.db.GetContext(ctx, &row, `SELECT * FROM custom_prompts WHERE is_default = 1 LIMIT 1`)
	if err == sql.ErrNoRows {
		return store.CustomPrompt{}, false, nil
	}
	if err != nil {
		return store.CustomPrompt{}, false, errx.Wrap(errx.StorageFailed, "default prompt", err)
	}
	return store.CustomPrompt{ID: row.ID, Name: row.Name, Text: row.Text, IsDefault: row.IsDefault}, true, nil
}

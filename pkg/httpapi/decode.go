package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/stewart-y/photopipeline/pkg/objectstore"
	"github.com/stewart-y/photopipeline/pkg/state"
)

func decodeJSON(r *http.Request, dst interface{}) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(dst)
}

// uploadTargetKey computes the deterministic object-store key an
// admin-initiated upload through POST /jobs/:id/presign should land
// at, mirroring the executors' own key derivation so a manual
// re-upload overwrites the same logical artifact (spec §6.4).
func uploadTargetKey(job state.Job, req presignPutRequest) (string, error) {
	switch req.Kind {
	case "original":
		return objectstore.OriginalKey(job.SKU, job.ImageHash), nil
	case "background":
		version := req.Variant
		if version <= 0 {
			version = 1
		}
		return objectstore.BackgroundKey(job.SKU, job.ImageHash, job.Theme, version), nil
	case "composite":
		if req.Aspect == "" || req.Type == "" {
			return "", fmt.Errorf("aspect and type are required for kind=composite")
		}
		version := req.Variant
		if version <= 0 {
			version = 1
		}
		return objectstore.CompositeKey(job.SKU, job.ImageHash, job.Theme, req.Aspect, version, req.Type), nil
	default:
		return "", fmt.Errorf("kind must be one of original|background|composite")
	}
}

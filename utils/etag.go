package utils

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// GenerateETag builds a weak validator for one document revision.
func GenerateETag(id primitive.ObjectID, updatedAt time.Time) string {
	return fmt.Sprintf(`W/"%s-%d"`, id.Hex(), updatedAt.UnixMilli())
}

// Revision is one entry of a list validator.
type Revision struct {
	ID        primitive.ObjectID
	UpdatedAt time.Time
}

// ListETag changes whenever any member of the list is added, removed or
// updated.
func ListETag(revs []Revision) string {
	h := sha1.New()
	for _, r := range revs {
		h.Write(r.ID[:])
		h.Write([]byte(strconv.FormatInt(r.UpdatedAt.UnixMilli(), 10)))
	}
	return fmt.Sprintf(`W/"%d-%s"`, len(revs), hex.EncodeToString(h.Sum(nil))[:16])
}

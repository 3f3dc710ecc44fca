package objectstore

import (
	"context"

	"github.com/dancelink/platform/supabase/client"
)

// SupabaseStore stores objects in Supabase Storage buckets.
type SupabaseStore struct {
	client *client.Client
}

// NewSupabaseStore creates a store over c.
func NewSupabaseStore(c *client.Client) *SupabaseStore {
	return &SupabaseStore{client: c}
}

func (s *SupabaseStore) Upload(ctx context.Context, obj Object) error {
	c := s.client
	if obj.AccessToken != "" {
		c = c.WithAccessToken(obj.AccessToken)
	}
	return c.Storage().From(obj.Bucket).Upload(ctx, obj.Path, obj.Data, obj.ContentType, client.UploadOptions{
		Upsert: obj.Upsert,
	})
}

func (s *SupabaseStore) PublicURL(bucket, objectPath string) string {
	return s.client.Storage().From(bucket).GetPublicURL(objectPath)
}

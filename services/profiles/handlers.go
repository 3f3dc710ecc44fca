package profiles

import (
	"errors"
	"net/http"
	"strings"

	"github.com/dancelink/platform/internal/app/domain/profile"
	svcerrors "github.com/dancelink/platform/internal/errors"
	"github.com/dancelink/platform/internal/httputil"
	"github.com/dancelink/platform/internal/objectstore"
	commonservice "github.com/dancelink/platform/services/common/service"
)

// UpdateInput is the body of PUT /profile. Absent fields are left as they
// are; an empty string clears an optional field.
type UpdateInput struct {
	Name                     *string `json:"name"`
	DanceStyle               *string `json:"dance_style"`
	Gender                   *string `json:"gender"`
	Age                      *int    `json:"age"`
	Height                   *string `json:"height"`
	SkinTone                 *string `json:"skin_tone"`
	Experience               *string `json:"experience"`
	About                    *string `json:"about"`
	VideoURL                 *string `json:"video_url"`
	CertificationDocumentURL *string `json:"certification_document_url"`
}

// UploadResponse is returned by the upload endpoints.
type UploadResponse struct {
	URL     string          `json:"url"`
	Profile profile.Profile `json:"profile"`
}

func (s *Service) handleCatalog(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, s.catalog)
}

func (s *Service) handleGet(w http.ResponseWriter, r *http.Request) {
	sess, ok := httputil.RequireSession(w, r)
	if !ok {
		return
	}
	p, err := s.backend.For(sess).GetProfile(r.Context(), sess.UserID)
	if err != nil {
		httputil.WriteError(w, r, commonservice.StoreError(err, "profile", sess.UserID, "load profile"))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, p)
}

func (s *Service) handleUpdate(w http.ResponseWriter, r *http.Request) {
	sess, ok := httputil.RequireSession(w, r)
	if !ok {
		return
	}
	var in UpdateInput
	if !httputil.DecodeJSON(w, r, &in) {
		return
	}

	store := s.backend.For(sess)
	p, err := store.GetProfile(r.Context(), sess.UserID)
	if err != nil {
		httputil.WriteError(w, r, commonservice.StoreError(err, "profile", sess.UserID, "load profile"))
		return
	}
	if err := s.apply(&p, in); err != nil {
		httputil.WriteError(w, r, err)
		return
	}

	updated, err := store.UpdateProfile(r.Context(), p)
	if err != nil {
		httputil.WriteError(w, r, commonservice.StoreError(err, "profile", sess.UserID, "update profile"))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, updated)
}

// apply merges in into p, checking catalog-backed fields.
func (s *Service) apply(p *profile.Profile, in UpdateInput) error {
	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if name == "" {
			return svcerrors.Validation("name", "name is required")
		}
		p.Name = name
	}
	if in.DanceStyle != nil {
		if !s.catalog.AllowsProfileDanceStyle(*in.DanceStyle) {
			return svcerrors.Validation("dance_style", "unknown dance style")
		}
		p.DanceStyle = *in.DanceStyle
	}
	if in.Gender != nil {
		if !s.catalog.AllowsGender(*in.Gender) {
			return svcerrors.Validation("gender", "unknown gender")
		}
		p.Gender = *in.Gender
	}
	if in.Age != nil {
		if *in.Age <= 0 {
			p.Age = nil
		} else {
			age := *in.Age
			p.Age = &age
		}
	}
	if in.Height != nil {
		if *in.Height != "" && !s.catalog.AllowsHeight(*in.Height) {
			return svcerrors.Validation("height", "unknown height")
		}
		p.Height = profile.String(*in.Height)
	}
	if in.SkinTone != nil {
		if *in.SkinTone != "" && !s.catalog.AllowsSkinTone(*in.SkinTone) {
			return svcerrors.Validation("skin_tone", "unknown skin tone")
		}
		p.SkinTone = profile.String(*in.SkinTone)
	}
	if in.Experience != nil {
		p.Experience = profile.String(strings.TrimSpace(*in.Experience))
	}
	if in.About != nil {
		p.About = profile.String(strings.TrimSpace(*in.About))
	}
	if in.VideoURL != nil {
		p.VideoURL = profile.String(*in.VideoURL)
	}
	if in.CertificationDocumentURL != nil {
		p.CertificationDocumentURL = profile.String(*in.CertificationDocumentURL)
	}
	return nil
}

// uploadHandler accepts a multipart "file" part, checks it against rule,
// stores it and points the matching profile field at the public URL.
func (s *Service) uploadHandler(rule objectstore.Rule) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, ok := httputil.RequireSession(w, r)
		if !ok {
			return
		}
		if s.uploader == nil {
			httputil.WriteError(w, r, svcerrors.Unavailable("uploads are not configured", nil))
			return
		}

		r.Body = http.MaxBytesReader(w, r.Body, rule.MaxBytes+multipartOverhead)
		file, header, err := r.FormFile("file")
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) || r.ContentLength > rule.MaxBytes+multipartOverhead {
				httputil.WriteError(w, r, svcerrors.PayloadTooLarge(rule.MaxBytes))
				return
			}
			httputil.WriteError(w, r, svcerrors.Validation("file", "a file is required"))
			return
		}
		defer file.Close()

		url, err := s.uploader.Upload(r.Context(), rule, sess.UserID, sess.AccessToken, objectstore.File{
			Name:        header.Filename,
			ContentType: header.Header.Get("Content-Type"),
			Size:        header.Size,
			Body:        file,
		})
		if err != nil {
			s.logger.WithContext(r.Context()).WithError(err).WithField("kind", rule.Kind).Warn("upload rejected")
			if svcerrors.GetServiceError(err) == nil {
				err = svcerrors.Unavailable("upload failed", err)
			}
			httputil.WriteError(w, r, err)
			return
		}

		store := s.backend.For(sess)
		p, err := store.GetProfile(r.Context(), sess.UserID)
		if err != nil {
			httputil.WriteError(w, r, commonservice.StoreError(err, "profile", sess.UserID, "load profile"))
			return
		}
		switch rule.Kind {
		case objectstore.VideoRule.Kind:
			p.VideoURL = profile.String(url)
		case objectstore.CertificationRule.Kind:
			p.CertificationDocumentURL = profile.String(url)
		}
		updated, err := store.UpdateProfile(r.Context(), p)
		if err != nil {
			httputil.WriteError(w, r, commonservice.StoreError(err, "profile", sess.UserID, "update profile"))
			return
		}

		s.logger.WithContext(r.Context()).WithField("kind", rule.Kind).Info("profile media uploaded")
		httputil.WriteJSON(w, http.StatusOK, UploadResponse{URL: url, Profile: updated})
	})
}

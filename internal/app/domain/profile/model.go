package profile

import "time"

// Profile is a dancer's public profile. ID equals the owning auth identity.
type Profile struct {
	ID                       string    `json:"id" db:"id" validate:"required"`
	Name                     string    `json:"name" db:"name" validate:"notblank,max=120"`
	Email                    string    `json:"email" db:"email" validate:"omitempty,email"`
	DanceStyle               string    `json:"dance_style" db:"dance_style"`
	Gender                   string    `json:"gender" db:"gender"`
	Age                      *int      `json:"age,omitempty" db:"age" validate:"omitempty,min=1,max=120"`
	Height                   *string   `json:"height,omitempty" db:"height"`
	SkinTone                 *string   `json:"skin_tone,omitempty" db:"skin_tone"`
	Experience               *string   `json:"experience,omitempty" db:"experience" validate:"omitempty,max=2000"`
	About                    *string   `json:"about,omitempty" db:"about" validate:"omitempty,max=4000"`
	VideoURL                 *string   `json:"video_url,omitempty" db:"video_url" validate:"omitempty,url"`
	CertificationDocumentURL *string   `json:"certification_document_url,omitempty" db:"certification_document_url" validate:"omitempty,url"`
	CreatedAt                time.Time `json:"created_at" db:"created_at"`
	UpdatedAt                time.Time `json:"updated_at" db:"updated_at"`
}

// Summary is the subset of a profile shown to organizers and in threads.
type Summary struct {
	ID         string  `json:"id" db:"id"`
	Name       string  `json:"name" db:"name"`
	Email      string  `json:"email,omitempty" db:"email"`
	DanceStyle string  `json:"dance_style,omitempty" db:"dance_style"`
	Gender     string  `json:"gender,omitempty" db:"gender"`
	VideoURL   *string `json:"video_url,omitempty" db:"video_url"`
}

// Summary returns the public subset of p.
func (p Profile) Summary() Summary {
	return Summary{
		ID:         p.ID,
		Name:       p.Name,
		Email:      p.Email,
		DanceStyle: p.DanceStyle,
		Gender:     p.Gender,
		VideoURL:   p.VideoURL,
	}
}

// Clone returns a deep copy of p.
func (p Profile) Clone() Profile {
	out := p
	out.Age = cloneInt(p.Age)
	out.Height = cloneString(p.Height)
	out.SkinTone = cloneString(p.SkinTone)
	out.Experience = cloneString(p.Experience)
	out.About = cloneString(p.About)
	out.VideoURL = cloneString(p.VideoURL)
	out.CertificationDocumentURL = cloneString(p.CertificationDocumentURL)
	return out
}

// String returns a pointer to s, or nil when s is empty.
func String(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func cloneInt(i *int) *int {
	if i == nil {
		return nil
	}
	v := *i
	return &v
}

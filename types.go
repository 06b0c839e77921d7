package lynnzone

// Image is an uploaded image served from the static uploads directory.
type Image struct {
	Filename     string `db:"filename" json:"filename"`
	OriginalName string `db:"original_name" json:"original_name"`
	Width        int    `db:"width" json:"width"`
	Height       int    `db:"height" json:"height"`
	Size         int    `db:"size" json:"size"`
	UploadedAt   string `db:"uploaded_at" json:"uploaded_at"`
}

// URL is the site-relative path the image is served at.
func (img Image) URL() string {
	return "/public/" + uploadsSubdir + "/" + img.Filename
}

package database

// Result is one persisted ingestion record. Rows are written once and never updated.
type Result struct {
	ID                int64  `db:"id" json:"id"`
	Timestamp         string `db:"timestamp" json:"timestamp"`     // caller-supplied, stored verbatim
	DeviceCode        string `db:"device_code" json:"device_code"` // origin device
	EggCount          int    `db:"egg_count" json:"egg_count"`
	ImageURL          string `db:"image_url" json:"image_url"`
	BinaryImageURL    string `db:"binary_image_url" json:"binary_image_url"`
	AnnotatedImageURL string `db:"annotated_image_url" json:"annotated_image_url"`
	BoundingBoxes     string `db:"bounding_boxes" json:"bounding_boxes"` // opaque JSON text
	CreatedAt         string `db:"created_at" json:"created_at"`         // server receive time, RFC 3339 UTC
}

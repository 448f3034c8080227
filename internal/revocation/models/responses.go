package models

type RegisterListResponse struct {
	ID       string `json:"id"`
	Capacity int    `json:"capacity"`
}

type ListResponse struct {
	ID           string `json:"id"`
	EncodedList  string `json:"encoded_list"`
	Capacity     int    `json:"capacity"`
	RevokedCount int    `json:"revoked_count"`
}

type BitResponse struct {
	ID      string `json:"id"`
	Index   int    `json:"index"`
	Revoked bool   `json:"revoked"`
}

// NewListResponse renders a list view for the API.
func NewListResponse(l *List) ListResponse {
	return ListResponse{
		ID:           l.ID.String(),
		EncodedList:  l.Bitmap.Encode(),
		Capacity:     Capacity,
		RevokedCount: l.Bitmap.Count(),
	}
}

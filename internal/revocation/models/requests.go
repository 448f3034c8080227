package models

import (
	"strings"

	dErrors "rlregistry/pkg/domain-errors"
)

// maxBatchEntries bounds each side of a bit update request.
const maxBatchEntries = Capacity

type RegisterListRequest struct {
	ID string `json:"id"`
}

// Validate checks the request shape; id syntax is enforced by ParseListID.
func (r *RegisterListRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request is required")
	}
	if r.ID == "" {
		return dErrors.New(dErrors.CodeValidation, "id is required")
	}
	return nil
}

type UpdateBitsRequest struct {
	Set   []int `json:"set"`
	Clear []int `json:"clear"`
}

// Follows validation order: Size -> Required. Index ranges are checked by NewBatch.
func (r *UpdateBitsRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request is required")
	}
	if len(r.Set) > maxBatchEntries || len(r.Clear) > maxBatchEntries {
		return dErrors.Newf(dErrors.CodeValidation,
			"set and clear must each have %d entries or less", maxBatchEntries)
	}
	if len(r.Set) == 0 && len(r.Clear) == 0 {
		return dErrors.New(dErrors.CodeValidation, "set or clear is required")
	}
	return nil
}

type ReplaceListRequest struct {
	EncodedList string `json:"encoded_list"`
}

func (r *ReplaceListRequest) Normalize() {
	if r == nil {
		return
	}
	r.EncodedList = strings.TrimSpace(r.EncodedList)
}

func (r *ReplaceListRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request is required")
	}
	if r.EncodedList == "" {
		return dErrors.New(dErrors.CodeValidation, "encoded_list is required")
	}
	return nil
}

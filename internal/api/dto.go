package api

import (
	"github.com/starford/avlog/internal/index"
	"github.com/starford/avlog/internal/recordservice"
	"github.com/starford/avlog/internal/storage"
)

// HourListResponse wraps the hour buckets of the output tree.
type HourListResponse struct {
	Hours []index.HourCount `json:"hours" validate:"required"`
}

// RecordListResponse wraps the record files of one hour bucket.
type RecordListResponse struct {
	Hour    int             `json:"hour" example:"9" validate:"required"`
	Records []storage.Entry `json:"records" validate:"required"`
}

// RecordQueryResponse wraps catalogued records matching a time range.
type RecordQueryResponse struct {
	Records []index.RecordRow `json:"records" validate:"required"`
}

// RecordDetail is a single record document (aliased from the domain layer).
type RecordDetail = recordservice.RecordDetail

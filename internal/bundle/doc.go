// Package bundle defines the records and collaborator interfaces shared by the
// page bundling pipeline, its stores, and the delivery layer.
package bundle

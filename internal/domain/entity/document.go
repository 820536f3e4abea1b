package entity

// Document is implemented by every entity mirrored from a remote collection.
// IDs are assigned by the store and unique within a collection.
type Document interface {
	GetID() string
	SetID(id string)
}

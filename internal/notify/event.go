package notify

import (
	"time"

	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/runtime/schema"
)

var _ runtime.Object = &ChangeEvent{}

// ChangeEvent tells observers that the data behind URI changed.
type ChangeEvent struct {
	ID        string    `json:"id"`
	URI       string    `json:"uri"`
	Action    string    `json:"action"`
	Timestamp time.Time `json:"timestamp"`
}

func (e *ChangeEvent) GetObjectKind() schema.ObjectKind {
	return schema.EmptyObjectKind
}

func (e *ChangeEvent) DeepCopyObject() runtime.Object {
	if e == nil {
		return nil
	}
	out := *e

	return &out
}

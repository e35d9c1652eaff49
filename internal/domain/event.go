package domain

// Event is a temporalized entity modelling something that happened
type Event struct {
	TempEntity
	Type string `json:"kind,omitempty"`
}

// Kind implements Entity
func (e *Event) Kind() Kind { return KindEvent }

// ObjectPermissions implements Grantable
func (e *Event) ObjectPermissions() []string { return objectPermissions(KindEvent) }

func (e *Event) String() string { return e.Name }

// Work is a temporalized entity modelling a created work (book, painting, ...)
type Work struct {
	TempEntity
	Type string `json:"kind,omitempty"`
}

// Kind implements Entity
func (w *Work) Kind() Kind { return KindWork }

// ObjectPermissions implements Grantable
func (w *Work) ObjectPermissions() []string { return objectPermissions(KindWork) }

func (w *Work) String() string { return w.Name }

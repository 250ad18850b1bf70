package ai

import "context"

type Capabilities struct {
	Images  bool
	PDFs    bool
	History bool
}

func (c Capabilities) Files() bool {
	return c.Images || c.PDFs
}

type Provider interface {
	Complete(ctx context.Context, req Request) (Result, error)
}

type Descriptor struct {
	Name         string
	Priority     int
	Model        string
	Capabilities Capabilities
	Provider     Provider
}

// Preprocessor turns one raw attachment into an adapter-appropriate
// fragment. Implemented by internal/prep; faked in dispatcher tests.
type Preprocessor interface {
	Process(ctx context.Context, att Attachment, caps Capabilities) Fragment
}

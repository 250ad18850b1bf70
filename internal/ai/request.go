package ai

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type Attachment struct {
	Name     string `json:"name"`
	MimeType string `json:"mime_type"`
	Data     []byte `json:"data"`
	Size     int64  `json:"size"`
}

type Request struct {
	SystemPrompt string
	History      []Message
	Message      string
	Attachments  []Attachment
	Fragments    []Fragment
	Temperature  float64
	MaxTokens    int
}

type Result struct {
	Text          string
	Provider      string
	Model         string
	ElapsedMillis int64
}

const (
	FragmentText   = "text"
	FragmentInline = "inline"
	FragmentNote   = "note"
)

// Fragment is the per-attachment output of preprocessing: extracted text,
// an inline binary payload for vision-capable providers, or a degraded note.
type Fragment struct {
	Kind     string
	Name     string
	MimeType string
	Text     string
	Data     []byte
}

func TextOfFragments(frags []Fragment) string {
	out := ""
	for _, f := range frags {
		if f.Kind == FragmentInline {
			continue
		}
		if out != "" {
			out += "\n\n"
		}
		out += f.Text
	}
	return out
}

func InlineFragments(frags []Fragment) []Fragment {
	out := make([]Fragment, 0, len(frags))
	for _, f := range frags {
		if f.Kind == FragmentInline {
			out = append(out, f)
		}
	}
	return out
}

package notify

type Priority int

// Values match the Pushover priority scale.
const (
	PriorityLow    Priority = -1
	PriorityNormal Priority = 0
	PriorityHigh   Priority = 1
)

func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityNormal:
		return "normal"
	case PriorityHigh:
		return "high"
	default:
		return "unknown"
	}
}

type Notification struct {
	Camera   string
	Title    string
	Body     string
	Image    []byte
	Priority Priority
}

type Config struct {
	APIToken string
	UserKey  string
	BaseURL  string
}

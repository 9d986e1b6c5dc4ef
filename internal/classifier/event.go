package classifier

// Event is the typed result of parsing one vision response. The
// implementations are Alarm, Observation and Nothing.
type Event interface {
	// Headline is the canonical first line, used as notification title.
	Headline() string
	Details() string
	isEvent()
}

type Alarm struct {
	Kind        string
	Description string
}

func (a Alarm) Headline() string { return "ALARM " + a.Kind }
func (a Alarm) Details() string  { return a.Description }
func (Alarm) isEvent()           {}

type Observation struct {
	Label       string
	Description string
}

func (o Observation) Headline() string { return "OBSERVATION " + o.Label }
func (o Observation) Details() string  { return o.Description }
func (Observation) isEvent()           {}

type Nothing struct {
	Description string
}

func (Nothing) Headline() string  { return "NOTHING TO REPORT" }
func (n Nothing) Details() string { return n.Description }
func (Nothing) isEvent()          {}

// TypeName returns "alarm", "observation" or "nothing".
func TypeName(ev Event) string {
	switch ev.(type) {
	case Alarm:
		return "alarm"
	case Observation:
		return "observation"
	case Nothing:
		return "nothing"
	default:
		return "unknown"
	}
}

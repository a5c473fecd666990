package bus

// Fanout publishes every event to several sinks, typically the in-process
// Memory bus plus an external broker. Delivery to each sink is attempted
// even when an earlier one fails; the first error is reported.
type Fanout struct {
	sinks []Publisher
}

// NewFanout combines sinks into one Publisher. Nil sinks are skipped.
func NewFanout(sinks ...Publisher) *Fanout {
	f := &Fanout{}
	for _, s := range sinks {
		if s != nil {
			f.sinks = append(f.sinks, s)
		}
	}
	return f
}

func (f *Fanout) Publish(channel string, payload interface{}) error {
	var first error
	for _, s := range f.sinks {
		if err := s.Publish(channel, payload); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (f *Fanout) Close() error {
	var first error
	for _, s := range f.sinks {
		if err := s.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

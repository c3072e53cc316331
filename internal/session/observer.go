package session

import "sync"

// Observer receives session notifications. Callbacks run on the session loop:
// they must return promptly and must not call Publish or Teardown synchronously.
type Observer interface {
	OnStateChange(ev StateEvent)
	OnMessage(msg ChatMessage)
	OnProtocolError(err *ProtocolError)
}

// ObserverFuncs adapts optional functions to Observer.
type ObserverFuncs struct {
	StateChange   func(StateEvent)
	Message       func(ChatMessage)
	ProtocolError func(*ProtocolError)
}

func (f ObserverFuncs) OnStateChange(ev StateEvent) {
	if f.StateChange != nil {
		f.StateChange(ev)
	}
}

func (f ObserverFuncs) OnMessage(msg ChatMessage) {
	if f.Message != nil {
		f.Message(msg)
	}
}

func (f ObserverFuncs) OnProtocolError(err *ProtocolError) {
	if f.ProtocolError != nil {
		f.ProtocolError(err)
	}
}

type observerEntry struct {
	id  int
	obs Observer
}

// observers is the registration list; once detached it stays empty.
type observers struct {
	mu       sync.Mutex
	next     int
	entries  []observerEntry
	detached bool
}

func (o *observers) add(obs Observer) func() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.detached || obs == nil {
		return func() {}
	}
	id := o.next
	o.next++
	o.entries = append(o.entries, observerEntry{id: id, obs: obs})

	var once sync.Once
	return func() {
		once.Do(func() { o.remove(id) })
	}
}

func (o *observers) remove(id int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for i, e := range o.entries {
		if e.id == id {
			o.entries = append(o.entries[:i:i], o.entries[i+1:]...)
			return
		}
	}
}

func (o *observers) detach() {
	o.mu.Lock()
	o.detached = true
	o.entries = nil
	o.mu.Unlock()
}

func (o *observers) snapshot() []Observer {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]Observer, 0, len(o.entries))
	for _, e := range o.entries {
		out = append(out, e.obs)
	}
	return out
}

func (o *observers) stateChange(ev StateEvent) {
	for _, obs := range o.snapshot() {
		obs.OnStateChange(ev)
	}
}

func (o *observers) message(msg ChatMessage) {
	for _, obs := range o.snapshot() {
		obs.OnMessage(msg)
	}
}

func (o *observers) protocolError(err *ProtocolError) {
	for _, obs := range o.snapshot() {
		obs.OnProtocolError(err)
	}
}

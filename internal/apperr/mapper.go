package apperr

// Constructor builds a domain error of a fixed kind from a message, the
// original error and metadata.
type Constructor func(message string, cause error, meta map[string]any) *Error

// For returns a Constructor producing errors of kind within domain.
func For(domain string, kind Kind) Constructor {
	return func(message string, cause error, meta map[string]any) *Error {
		return &Error{
			Kind:     kind,
			Domain:   domain,
			Message:  message,
			Cause:    cause,
			Metadata: mergeMeta(nil, meta),
		}
	}
}

// Mapper translates generic errors into one domain's errors. It holds no
// per-call state and is safe for concurrent use.
type Mapper struct {
	domain   string
	table    map[Kind]Constructor
	fallback Constructor
}

// NewMapper returns a Mapper dispatching on Kind through table. Kinds missing
// from table, and errors that carry no *Error at all, go to fallback.
func NewMapper(domain string, table map[Kind]Constructor, fallback Constructor) *Mapper {
	t := make(map[Kind]Constructor, len(table))
	for k, c := range table {
		t[k] = c
	}
	if fallback == nil {
		fallback = For(domain, KindRepository)
	}
	return &Mapper{domain: domain, table: t, fallback: fallback}
}

// DomainMapper returns a Mapper that covers every Kind for domain.
func DomainMapper(domain string) *Mapper {
	table := make(map[Kind]Constructor, len(Kinds))
	for _, k := range Kinds {
		table[k] = For(domain, k)
	}
	return NewMapper(domain, table, For(domain, KindRepository))
}

// Domain returns the domain name errors are mapped into.
func (m *Mapper) Domain() string { return m.domain }

// Map converts err into this mapper's domain. Errors already in the domain
// are returned unchanged; the original error is kept as the cause.
func (m *Mapper) Map(err error, meta map[string]any) error {
	if err == nil {
		return nil
	}
	ae, ok := As(err)
	if !ok {
		return m.fallback(err.Error(), err, meta)
	}
	if ae.Domain == m.domain && !ae.sentinel {
		return err
	}
	ctor, found := m.table[ae.Kind]
	if !found {
		ctor = m.fallback
	}
	msg := ae.Message
	if ae.Cause != nil && msg == "" {
		msg = ae.Cause.Error()
	}
	out := ctor(msg, err, mergeMeta(ae.Metadata, meta))
	if len(ae.Fields) > 0 {
		out.Fields = ae.Fields
	}
	return out
}

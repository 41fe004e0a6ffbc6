package fabric

import (
	"go.uber.org/zap"
)

// PortSet accumulates the canonical ports of one discovery run.
type PortSet struct {
	ports  []*Port
	logger *zap.Logger
}

// NewPortSet returns an empty port set.
func NewPortSet(logger *zap.Logger) *PortSet {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PortSet{logger: logger}
}

// Ports returns the canonical ports in discovery order.
func (s *PortSet) Ports() []*Port {
	return s.ports
}

// Len returns the number of canonical ports.
func (s *PortSet) Len() int {
	return len(s.ports)
}

// Register adds a discovered port and its optional far end. A port already
// known by GUID and port number is not added again; topology dumps list
// every connected cable once from each side.
func (s *PortSet) Register(p1, p2 *Port) bool {
	if s.findByID(p1) != nil || (p2 != nil && s.findByID(p2) != nil) {
		return false
	}
	s.ports = append(s.ports, p1)
	if p2 != nil {
		s.ports = append(s.ports, p2)
	}
	return true
}

func (s *PortSet) findByID(c *Port) *Port {
	if c.GUID == nil || c.Num == nil {
		return nil
	}
	for _, p := range s.ports {
		if p.GUID != nil && p.Num != nil && *p.GUID == *c.GUID && *p.Num == *c.Num {
			return p
		}
	}
	return nil
}

// Resolve finds the canonical port a candidate refers to. GUID and port
// number are authoritative; without them the name and port number must
// match and the HCA, leaf and spine units must agree, including on whether
// they are present at all. Returns nil when nothing matches.
func (s *PortSet) Resolve(c *Port) *Port {
	if c == nil {
		return nil
	}

	if c.GUID != nil && c.Num != nil {
		if p := s.findByID(c); p != nil {
			return p
		}
		s.logger.Debug("unable to resolve port by guid",
			zap.Stringer("guid", c.GUID), zap.Int("port", *c.Num))
	}

	if c.Name != "" && c.Num != nil && c.Name != "localhost" {
		for _, p := range s.ports {
			if p.Name != c.Name || p.Num == nil || *p.Num != *c.Num {
				continue
			}
			if sameUnit(p.HCA, c.HCA) && sameUnit(p.Leaf, c.Leaf) && sameUnit(p.Spine, c.Spine) {
				return p
			}
		}
		s.logger.Debug("unable to resolve port by name",
			zap.String("label", c.Label()))
	}

	return nil
}

// ResolveAndUpdate resolves the candidate and merges its fields onto the
// match. Port 0 is the switch management loopback and is always discarded.
func (s *PortSet) ResolveAndUpdate(c *Port) *Port {
	if c == nil {
		return nil
	}
	if c.Num != nil && *c.Num == 0 {
		s.logger.Debug("ignoring loopback port", zap.String("label", c.Label()))
		return nil
	}

	p := s.Resolve(c)
	if p == nil {
		return nil
	}
	p.Merge(c)
	return p
}

// ResolveLabel parses a free-form label and resolves it.
func (s *PortSet) ResolveLabel(label string) *Port {
	return s.Resolve(ParseLabel(label))
}

func sameUnit(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

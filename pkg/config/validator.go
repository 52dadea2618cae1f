package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
)

// Validate checks semantic constraints the schema cannot express.
// All problems are reported together.
func (c *BridgeConfig) Validate() error {
	var errs []error

	if c.APIVersion != APIVersion {
		errs = append(errs, fmt.Errorf("apiVersion must be %q, got %q", APIVersion, c.APIVersion))
	}
	if c.Kind != Kind {
		errs = append(errs, fmt.Errorf("kind must be %q, got %q", Kind, c.Kind))
	}

	s := &c.Spec
	errs = append(errs, validateAddr("spec.listen.addr", s.Listen.Addr))
	if s.Static.Enabled {
		errs = append(errs, validateAddr("spec.static.addr", s.Static.Addr))
		if s.Static.Dir == "" {
			errs = append(errs, errors.New("spec.static.dir is required when static serving is enabled"))
		}
	}
	if s.Metrics.Enabled {
		errs = append(errs, validateAddr("spec.metrics.addr", s.Metrics.Addr))
	}

	if s.Upstream.Provider != ProviderGemini {
		errs = append(errs, fmt.Errorf("spec.upstream.provider %q is not supported", s.Upstream.Provider))
	}
	if s.Upstream.Model == "" {
		errs = append(errs, errors.New("spec.upstream.model is required"))
	}
	if u, err := url.Parse(s.Upstream.URL); err != nil || (u.Scheme != "ws" && u.Scheme != "wss") {
		errs = append(errs, fmt.Errorf("spec.upstream.url must be a ws:// or wss:// URL, got %q", s.Upstream.URL))
	}

	if s.Session.HandshakeTimeout.Duration <= 0 {
		errs = append(errs, errors.New("spec.session.handshakeTimeout must be positive"))
	}
	if s.Session.ConnectTimeout.Duration <= 0 {
		errs = append(errs, errors.New("spec.session.connectTimeout must be positive"))
	}
	if s.Session.TurnTimeout.Duration < 0 {
		errs = append(errs, errors.New("spec.session.turnTimeout must not be negative"))
	}
	if s.Session.MaxReceiveRetries < 0 {
		errs = append(errs, errors.New("spec.session.maxReceiveRetries must not be negative"))
	}

	if err := s.Logging.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("spec.logging: %w", err))
	}

	return errors.Join(errs...)
}

func validateAddr(field, addr string) error {
	if addr == "" {
		return fmt.Errorf("%s is required", field)
	}
	if _, _, err := net.SplitHostPort(addr); err != nil {
		return fmt.Errorf("%s: %w", field, err)
	}
	return nil
}

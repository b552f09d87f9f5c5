// config.go defines the stack manifest schema and its normalization
// helpers. The YAML shape intentionally follows the conventions of
// multi-container deployment descriptors: a services map, a volumes map,
// and per-service environment/ports/volumes/depends_on fields.
//
// Fields that accept multiple syntaxes in the wild (environment as map or
// "KEY=value" list, depends_on as name list or condition mapping) get
// custom yaml.v3 unmarshallers that normalize both forms into one
// representation.
package manifest

import (
	"fmt"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mmr-tortoise/stackd/internal/model"
)

// Default restart pacing: one second between attempts, no backoff growth,
// unlimited retries. This reproduces the uniform "restart: always with no
// backoff" behavior of the reference deployment.
const (
	DefaultRestartDelay = 1 * time.Second
	DefaultBackoffRate  = 1.0
	DefaultMaxRetries   = 0 // 0 means unlimited
)

// Default probe pacing used when a probe omits interval/timeout/retries.
const (
	DefaultProbeInterval = 2 * time.Second
	DefaultProbeTimeout  = 3 * time.Second
	DefaultProbeRetries  = 30
)

// Stack is the root of a parsed manifest: a named set of services plus
// the stack-level resources (named volumes, optional metrics endpoint)
// they share.
type Stack struct {
	// Name identifies the stack. Container names, network name, and
	// management labels all derive from it. When omitted in the manifest,
	// Load fills it from the manifest file's base name.
	Name string `yaml:"name"`

	// Services maps service names to their definitions.
	Services map[string]*Service `yaml:"services"`

	// Volumes declares the named volumes available to services.
	// Values are currently empty placeholders (the conventional
	// "db_data: {}" form); the map keys are what matters.
	Volumes map[string]*VolumeSpec `yaml:"volumes"`

	// Metrics optionally configures orchestration telemetry reporting.
	Metrics *MetricsConfig `yaml:"metrics"`
}

// ServiceNames returns the service names in sorted order, for
// deterministic iteration in output and validation messages.
func (s *Stack) ServiceNames() []string {
	names := make([]string, 0, len(s.Services))
	for name := range s.Services {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// VolumeNames returns the declared named volumes in sorted order.
func (s *Stack) VolumeNames() []string {
	names := make([]string, 0, len(s.Volumes))
	for name := range s.Volumes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// PortMappings collects the published ports of every service into a
// single normalized slice, sorted by service name then host port.
func (s *Stack) PortMappings() ([]model.PortMapping, error) {
	var all []model.PortMapping
	for _, name := range s.ServiceNames() {
		mappings, err := s.Services[name].PortMappings(name)
		if err != nil {
			return nil, err
		}
		all = append(all, mappings...)
	}
	return all, nil
}

// Service defines a single long-running container: what to run, how to
// configure it, what it depends on, and how to react when it exits.
type Service struct {
	// Image is the container image reference. Required.
	Image string `yaml:"image"`

	// Command overrides the image CMD when non-empty.
	Command []string `yaml:"command"`

	// Entrypoint overrides the image ENTRYPOINT when non-empty.
	Entrypoint []string `yaml:"entrypoint"`

	// Environment holds the variables injected into the container.
	Environment EnvMap `yaml:"environment"`

	// Ports lists published ports in "host:container[/protocol]" form.
	Ports []string `yaml:"ports"`

	// Volumes lists mounts in "source:/target[:ro]" form. A bare source
	// references a named volume from the stack-level volumes map.
	Volumes []string `yaml:"volumes"`

	// DependsOn lists startup-order constraints on other services.
	DependsOn DependencyList `yaml:"depends_on"`

	// Restart names the restart policy. Empty resolves to "always".
	Restart string `yaml:"restart"`

	// RestartDelay is the pause before a restart attempt. Zero resolves
	// to DefaultRestartDelay.
	RestartDelay time.Duration `yaml:"restart_delay"`

	// BackoffRate multiplies the delay after each consecutive restart.
	// Zero resolves to DefaultBackoffRate (no growth).
	BackoffRate float64 `yaml:"backoff_rate"`

	// MaxRetries bounds consecutive restart attempts. Zero means
	// unlimited, matching an unconditional restart policy.
	MaxRetries int `yaml:"max_retries"`

	// Probe optionally declares a readiness check. Services depending on
	// this one with "condition: healthy" wait for the probe to pass.
	Probe *Probe `yaml:"probe"`
}

// RestartPolicy returns the service's typed restart policy,
// defaulting to always.
func (s *Service) RestartPolicy() (model.RestartPolicy, error) {
	return model.ParseRestartPolicy(s.Restart)
}

// PortMappings parses and validates the service's port specs.
func (s *Service) PortMappings(serviceName string) ([]model.PortMapping, error) {
	mappings := make([]model.PortMapping, 0, len(s.Ports))
	for _, spec := range s.Ports {
		pm, err := model.ParsePortMapping(serviceName, spec)
		if err != nil {
			return nil, fmt.Errorf("service %q: %w", serviceName, err)
		}
		mappings = append(mappings, *pm)
	}
	return mappings, nil
}

// VolumeMounts parses and validates the service's volume specs.
func (s *Service) VolumeMounts(serviceName string) ([]model.VolumeMount, error) {
	mounts := make([]model.VolumeMount, 0, len(s.Volumes))
	for _, spec := range s.Volumes {
		m, err := model.ParseVolumeMount(spec)
		if err != nil {
			return nil, fmt.Errorf("service %q: %w", serviceName, err)
		}
		mounts = append(mounts, *m)
	}
	return mounts, nil
}

// RestartDelayOrDefault returns the restart delay with the package
// default applied.
func (s *Service) RestartDelayOrDefault() time.Duration {
	if s.RestartDelay > 0 {
		return s.RestartDelay
	}
	return DefaultRestartDelay
}

// BackoffRateOrDefault returns the backoff multiplier with the package
// default applied.
func (s *Service) BackoffRateOrDefault() float64 {
	if s.BackoffRate > 0 {
		return s.BackoffRate
	}
	return DefaultBackoffRate
}

// Probe declares a readiness check for a service. Dependents with
// "condition: healthy" edges wait for the probe to pass before starting.
//
// The target format depends on the type:
//
//	tcp       host:port            (dial succeeds)
//	http      http://host:port/…   (GET returns 2xx/3xx)
//	postgres  connection DSN       (driver ping succeeds)
//	influx    http://host:port     (/ping returns 204)
type Probe struct {
	Type   string `yaml:"type"`
	Target string `yaml:"target"`

	// Interval is the pause between attempts; Timeout bounds each
	// attempt; Retries bounds the total attempt count. Zero values
	// resolve to the package defaults.
	Interval time.Duration `yaml:"interval"`
	Timeout  time.Duration `yaml:"timeout"`
	Retries  int           `yaml:"retries"`
}

// IntervalOrDefault returns the probe interval with the default applied.
func (p *Probe) IntervalOrDefault() time.Duration {
	if p.Interval > 0 {
		return p.Interval
	}
	return DefaultProbeInterval
}

// TimeoutOrDefault returns the per-attempt timeout with the default applied.
func (p *Probe) TimeoutOrDefault() time.Duration {
	if p.Timeout > 0 {
		return p.Timeout
	}
	return DefaultProbeTimeout
}

// RetriesOrDefault returns the attempt budget with the default applied.
func (p *Probe) RetriesOrDefault() int {
	if p.Retries > 0 {
		return p.Retries
	}
	return DefaultProbeRetries
}

// VolumeSpec is the stack-level declaration of a named volume. The
// conventional manifest form is an empty mapping ("db_data: {}") or a
// bare key; the declaration itself is what reserves the name.
type VolumeSpec struct {
	// Labels are applied to the Docker volume on creation, in addition
	// to the stackd management labels.
	Labels map[string]string `yaml:"labels"`
}

// MetricsConfig points the supervisor at an InfluxDB endpoint for
// orchestration telemetry (service starts, exits, restarts).
type MetricsConfig struct {
	URL    string `yaml:"url"`
	Token  string `yaml:"token"`
	Org    string `yaml:"org"`
	Bucket string `yaml:"bucket"`
}

// Dependency conditions. "started" gates only on the dependency's
// container running, mirroring plain depends_on semantics. "healthy"
// additionally waits for the dependency's readiness probe to pass.
const (
	ConditionStarted = "started"
	ConditionHealthy = "healthy"
)

// Dependency is one normalized depends_on edge.
type Dependency struct {
	// Service is the name of the depended-on service.
	Service string `yaml:"-"`

	// Condition is ConditionStarted or ConditionHealthy.
	Condition string `yaml:"condition"`
}

// DependencyList normalizes the two accepted depends_on syntaxes:
//
//	depends_on:            depends_on:
//	  - db                   db:
//	  - influx                 condition: healthy
//
// The list form implies "condition: started" for every entry.
type DependencyList []Dependency

// UnmarshalYAML implements yaml.Unmarshaler for DependencyList,
// accepting both the sequence-of-names form and the mapping form.
// Entries are returned sorted by service name for deterministic behavior
// regardless of the syntax used.
func (d *DependencyList) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.SequenceNode:
		var names []string
		if err := value.Decode(&names); err != nil {
			return fmt.Errorf("depends_on list: %w", err)
		}
		deps := make(DependencyList, 0, len(names))
		for _, name := range names {
			deps = append(deps, Dependency{Service: name, Condition: ConditionStarted})
		}
		*d = deps
		return nil

	case yaml.MappingNode:
		var entries map[string]struct {
			Condition string `yaml:"condition"`
		}
		if err := value.Decode(&entries); err != nil {
			return fmt.Errorf("depends_on mapping: %w", err)
		}
		deps := make(DependencyList, 0, len(entries))
		for name, entry := range entries {
			condition := entry.Condition
			if condition == "" {
				condition = ConditionStarted
			}
			if condition != ConditionStarted && condition != ConditionHealthy {
				return fmt.Errorf("depends_on %q: invalid condition %q (valid: started, healthy)", name, condition)
			}
			deps = append(deps, Dependency{Service: name, Condition: condition})
		}
		sort.Slice(deps, func(i, j int) bool { return deps[i].Service < deps[j].Service })
		*d = deps
		return nil

	default:
		return fmt.Errorf("depends_on: expected a list of service names or a mapping, got %s", value.Tag)
	}
}

// ServiceNames returns just the depended-on service names, in order.
func (d DependencyList) ServiceNames() []string {
	names := make([]string, 0, len(d))
	for _, dep := range d {
		names = append(names, dep.Service)
	}
	return names
}

// EnvMap normalizes the two accepted environment syntaxes:
//
//	environment:           environment:
//	  DATABASE_PORT: 5432    - DATABASE_PORT=5432
//
// Scalar values in the mapping form are coerced to strings, so unquoted
// numbers behave the same as quoted ones.
type EnvMap map[string]string

// UnmarshalYAML implements yaml.Unmarshaler for EnvMap, accepting both
// the mapping form and the "KEY=value" sequence form.
func (e *EnvMap) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.MappingNode:
		var m map[string]string
		if err := value.Decode(&m); err != nil {
			return fmt.Errorf("environment mapping: %w", err)
		}
		*e = m
		return nil

	case yaml.SequenceNode:
		var entries []string
		if err := value.Decode(&entries); err != nil {
			return fmt.Errorf("environment list: %w", err)
		}
		m := make(EnvMap, len(entries))
		for _, entry := range entries {
			key, val, found := cutEnvEntry(entry)
			if !found {
				return fmt.Errorf("environment entry %q: expected \"KEY=value\" format", entry)
			}
			m[key] = val
		}
		*e = m
		return nil

	default:
		return fmt.Errorf("environment: expected a mapping or a list of KEY=value entries, got %s", value.Tag)
	}
}

// Sorted returns the environment as "KEY=value" strings in sorted key
// order, the form the Docker API expects.
func (e EnvMap) Sorted() []string {
	keys := make([]string, 0, len(e))
	for k := range e {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	entries := make([]string, 0, len(keys))
	for _, k := range keys {
		entries = append(entries, k+"="+e[k])
	}
	return entries
}

// cutEnvEntry splits "KEY=value" at the first '='. A key with no '='
// is rejected by the caller; an empty value ("KEY=") is allowed.
func cutEnvEntry(entry string) (key, value string, found bool) {
	for i := 0; i < len(entry); i++ {
		if entry[i] == '=' {
			return entry[:i], entry[i+1:], i > 0
		}
	}
	return "", "", false
}

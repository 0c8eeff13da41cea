package config

import (
	"fmt"
	"regexp"
	"slices"
	"strings"
)

// ValidationError represents a single validation failure
type ValidationError struct {
	Field   string // The config field path (e.g., "kcidb.project_id")
	Value   any    // The invalid value
	Message string // Human-readable error description
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e)))
	for i, err := range e {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// originRegex matches KCIDB origin names.
var originRegex = regexp.MustCompile(`^[a-z0-9_]+$`)

// ValidDBTypes returns the supported regression store backends.
func ValidDBTypes() []string {
	return []string{"sqlite", "badger"}
}

// ValidLogLevels returns the list of valid log levels
func ValidLogLevels() []string {
	return []string{"debug", "info", "warn", "error"}
}

// ValidLogFormats returns the list of valid log output formats
func ValidLogFormats() []string {
	return []string{"text", "json"}
}

// Validate checks settings shared by every command.
func (c *Config) Validate() []ValidationError {
	var errs []ValidationError

	for _, name := range c.DBNames() {
		db := c.DBConfigs[name]
		field := "db_configs." + name
		if !slices.Contains(ValidDBTypes(), db.Type) {
			errs = append(errs, ValidationError{
				Field:   field + ".type",
				Value:   db.Type,
				Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidDBTypes(), ", ")),
			})
		}
		if db.Path == "" {
			errs = append(errs, ValidationError{Field: field + ".path", Value: db.Path, Message: "is required"})
		}
	}

	if c.Origin != "" && !originRegex.MatchString(c.Origin) {
		errs = append(errs, ValidationError{
			Field:   "origin",
			Value:   c.Origin,
			Message: "must contain only lowercase letters, digits and underscores",
		})
	}

	if !slices.Contains(ValidLogLevels(), c.Logging.Level) {
		errs = append(errs, ValidationError{
			Field:   "logging.level",
			Value:   c.Logging.Level,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidLogLevels(), ", ")),
		})
	}
	if !slices.Contains(ValidLogFormats(), c.Logging.Format) {
		errs = append(errs, ValidationError{
			Field:   "logging.format",
			Value:   c.Logging.Format,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidLogFormats(), ", ")),
		})
	}

	return errs
}

// ValidateKCIDB checks the settings send-kcidb needs on top of Validate.
func (c *Config) ValidateKCIDB() []ValidationError {
	var errs []ValidationError

	if c.Origin == "" {
		errs = append(errs, ValidationError{Field: "origin", Value: c.Origin, Message: "is required"})
	}
	if c.KCIDB.ProjectID == "" {
		errs = append(errs, ValidationError{Field: "kcidb.project_id", Value: c.KCIDB.ProjectID, Message: "is required"})
	}
	if c.KCIDB.TopicName == "" {
		errs = append(errs, ValidationError{Field: "kcidb.topic_name", Value: c.KCIDB.TopicName, Message: "is required"})
	}
	if strings.ContainsAny(c.KCIDB.ProjectID+c.KCIDB.TopicName, " *>") {
		errs = append(errs, ValidationError{
			Field:   "kcidb",
			Value:   c.KCIDB.ProjectID + "." + c.KCIDB.TopicName,
			Message: "project id and topic name must not contain spaces or wildcards",
		})
	}
	if c.KCIDB.FlushTimeout <= 0 {
		errs = append(errs, ValidationError{Field: "kcidb.flush_timeout", Value: c.KCIDB.FlushTimeout.String(), Message: "must be positive"})
	}

	return errs
}

// Deck Bridge
// Copyright (c) 2026 The Quick Command Deck Contributors.
// SPDX-License-Identifier: GPL-3.0-or-later
//
// This file is part of Deck Bridge.
//
// Deck Bridge is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// Deck Bridge is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with Deck Bridge.  If not, see <http://www.gnu.org/licenses/>.

package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"github.com/quickcommanddeck/deckbridge/pkg/protocol"
)

var ErrInvalidConfig = errors.New("invalid config")

const maxImplicitID = 255

// ValidationError lists every rule the config broke.
type ValidationError struct {
	Fields []FieldError
}

type FieldError struct {
	Field   string
	Tag     string
	Message string
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return ErrInvalidConfig.Error()
	}
	msgs := make([]string, len(e.Fields))
	for i, fe := range e.Fields {
		msgs[i] = fe.Message
	}
	return ErrInvalidConfig.Error() + ": " + strings.Join(msgs, "; ")
}

func (*ValidationError) Unwrap() error {
	return ErrInvalidConfig
}

var configValidator = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(tomlName)
	v.RegisterStructValidation(validateCommands, Values{})
	return v
}

func tomlName(fld reflect.StructField) string {
	name, _, _ := strings.Cut(fld.Tag.Get("toml"), ",")
	if name == "-" {
		return ""
	}
	return name
}

func validate(vals *Values) error {
	err := configValidator.Struct(vals)
	if err == nil {
		return nil
	}

	var errs validator.ValidationErrors
	if !errors.As(err, &errs) {
		return fmt.Errorf("validation failed: %w", err)
	}

	ve := &ValidationError{Fields: make([]FieldError, len(errs))}
	for i, fe := range errs {
		ve.Fields[i] = FieldError{
			Field:   fieldPath(fe),
			Tag:     fe.Tag(),
			Message: formatValidationError(fe),
		}
	}
	return ve
}

// validateCommands holds the rules that span fields or depend on the wire
// limits of the display message.
func validateCommands(sl validator.StructLevel) {
	vals, ok := sl.Current().Interface().(Values)
	if !ok {
		return
	}

	for i, cmd := range vals.Commands {
		report := func(field, tag, param string) {
			sl.ReportError(cmd, fmt.Sprintf("command[%d].%s", i, field), field, tag, param)
		}

		if cmd.ID == nil && i > maxImplicitID {
			report("id", "implicit_id", "")
		}

		if vals.Config.SendCompletedNotifs && len(cmd.ReportMessage) == 0 {
			report("report_message", "required_with_notifs", "")
		}

		if len(cmd.ReportMessage) > protocol.MaxLines {
			report("report_message", "max_lines", fmt.Sprint(protocol.MaxLines))
		}

		for _, line := range cmd.ReportMessage {
			if len(line) > protocol.MaxLineBytes {
				report("report_message", "max_line_bytes", fmt.Sprint(protocol.MaxLineBytes))
				break
			}
			if !utf8.ValidString(line) {
				report("report_message", "utf8", "")
				break
			}
		}
	}
}

func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if _, rest, ok := strings.Cut(ns, "."); ok {
		return rest
	}
	return ns
}

func formatValidationError(fe validator.FieldError) string {
	field := fieldPath(fe)
	switch fe.Tag() {
	case "required_with_notifs":
		return field + " is required when send_completed_notifs is enabled"
	case "implicit_id":
		return field + " must be set explicitly past the 256th command"
	case "max_lines":
		return fmt.Sprintf("%s must have at most %s lines", field, fe.Param())
	case "max_line_bytes":
		return fmt.Sprintf("%s lines must be at most %s bytes", field, fe.Param())
	case "utf8":
		return field + " must be valid UTF-8"
	case "url":
		return field + " must be a valid URL"
	case "ip|cidr":
		return field + " must be an IP address or CIDR"
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, fe.Param())
	case "required_with":
		return fmt.Sprintf("%s is required when %s is set", field, strings.ToLower(fe.Param()))
	case "hostname_port":
		return field + " must be a host:port address"
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", field, fe.Param())
	case "gte":
		return fmt.Sprintf("%s must be greater than or equal to %s", field, fe.Param())
	case "lt":
		return fmt.Sprintf("%s must be less than %s", field, fe.Param())
	case "lte":
		return fmt.Sprintf("%s must be less than or equal to %s", field, fe.Param())
	default:
		return fmt.Sprintf("%s failed %s validation", field, fe.Tag())
	}
}

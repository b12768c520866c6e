// Copyright (C) 2025 efchat.net <tj@efchat.net>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package directory

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/emausjovem/comunidade/backend/chaterr"
	"github.com/emausjovem/comunidade/backend/models"
)

const (
	MaxNameLength        = 80
	MaxDescriptionLength = 280
	MaxIconLength        = 40
)

var iconPattern = regexp.MustCompile(`^[a-z0-9-]+$`)

// NormalizeGroupInput trims the fields, fills defaults and validates them.
func NormalizeGroupInput(in models.GroupInput) (models.GroupInput, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Description = strings.TrimSpace(in.Description)
	in.Icon = strings.ToLower(strings.TrimSpace(in.Icon))

	if in.Name == "" {
		return in, chaterr.Validation("group name is required")
	}
	if in.Description == "" {
		return in, chaterr.Validation("group description is required")
	}
	if utf8.RuneCountInString(in.Name) > MaxNameLength {
		return in, chaterr.Validation("group name is longer than %d characters", MaxNameLength)
	}
	if utf8.RuneCountInString(in.Description) > MaxDescriptionLength {
		return in, chaterr.Validation("group description is longer than %d characters", MaxDescriptionLength)
	}

	if in.Icon == "" {
		in.Icon = models.DefaultIcon
	}
	if len(in.Icon) > MaxIconLength || !iconPattern.MatchString(in.Icon) {
		return in, chaterr.Validation("invalid icon %q", in.Icon)
	}

	if in.Visibility == "" {
		in.Visibility = models.VisibilityPublic
	}
	if !in.Visibility.Valid() {
		return in, chaterr.Validation("invalid visibility %q", in.Visibility)
	}
	return in, nil
}

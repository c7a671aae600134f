// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatekeep Contributors

package mail

import (
	"time"

	"github.com/gatekeep/gatekeep/internal/auth"
)

// Job is one email for the external sender.
type Job struct {
	Kind      string    `json:"kind"`
	To        string    `json:"to"`
	UserID    int64     `json:"user_id"`
	Link      string    `json:"link"`
	CreatedAt time.Time `json:"created_at"`
}

func newJob(kind string, user *auth.User, paths Paths, token, origin string, now time.Time) (Job, error) {
	link, err := BuildLink(origin, paths.forKind(kind), token)
	if err != nil {
		return Job{}, err
	}
	return Job{
		Kind:      kind,
		To:        user.Email,
		UserID:    user.ID,
		Link:      link,
		CreatedAt: now.UTC(),
	}, nil
}

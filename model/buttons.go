package model

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	ButtonStartSurvey  = "start_survey"
	ButtonNextQuestion = "next_question"
	ButtonBackQuestion = "back_question"
	ButtonFinishSurvey = "finish_survey"

	ButtonViewPrefix  = "view_"
	ButtonReplyPrefix = "reply_"
	ButtonAllowPrefix = "allow_"

	CommandStart = "/start"
	CommandUsers = "/users"
)

func ViewButton(userID int64) string  { return ButtonViewPrefix + strconv.FormatInt(userID, 10) }
func ReplyButton(userID int64) string { return ButtonReplyPrefix + strconv.FormatInt(userID, 10) }
func AllowButton(userID int64) string { return ButtonAllowPrefix + strconv.FormatInt(userID, 10) }

// ParseTargetButton splits a reviewer button id like "reply_42" into its
// prefix and target user id.
func ParseTargetButton(data string) (string, int64, error) {
	for _, prefix := range []string{ButtonViewPrefix, ButtonReplyPrefix, ButtonAllowPrefix} {
		if !strings.HasPrefix(data, prefix) {
			continue
		}
		id, err := strconv.ParseInt(strings.TrimPrefix(data, prefix), 10, 64)
		if err != nil {
			return "", 0, fmt.Errorf("parse target of %q: %w", data, err)
		}
		return prefix, id, nil
	}
	return "", 0, fmt.Errorf("%w: %q", ErrUnknownButton, data)
}

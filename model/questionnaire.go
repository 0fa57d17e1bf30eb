package model

import (
	"errors"
	"fmt"
	"strings"
)

// Questionnaire is the fixed question sequence plus every text the bot shows.
type Questionnaire struct {
	Questions []string `yaml:"questions"`
	Messages  Messages `yaml:"messages"`
}

type Messages struct {
	Greeting         string `yaml:"greeting"`
	ReviewerGreeting string `yaml:"reviewer_greeting"`
	StartButton      string `yaml:"start_button"`
	AlreadyCompleted string `yaml:"already_completed"`
	RetakeRequired   string `yaml:"retake_required"`
	RestartPrompt    string `yaml:"restart_prompt"`
	AnswerFirst      string `yaml:"answer_first"`

	BackButton   string `yaml:"back_button"`
	NextButton   string `yaml:"next_button"`
	FinishButton string `yaml:"finish_button"`

	ThankYou      string `yaml:"thank_you"`
	ContactPrompt string `yaml:"contact_prompt"`
	ContactButton string `yaml:"contact_button"`

	NoticeTitle    string `yaml:"notice_title"`
	NoticeQuestion string `yaml:"notice_question"`
	NoticeAnswer   string `yaml:"notice_answer"`

	ReplyPrompt   string `yaml:"reply_prompt"`
	ReplyPrefix   string `yaml:"reply_prefix"`
	ReplySent     string `yaml:"reply_sent"`
	ReplyFailed   string `yaml:"reply_failed"`
	NoUsers       string `yaml:"no_users"`
	PickUser      string `yaml:"pick_user"`
	UserButton    string `yaml:"user_button"`
	HistoryHeader string `yaml:"history_header"`
	HistoryEmpty  string `yaml:"history_empty"`
	ReviewerLabel string `yaml:"reviewer_label"`
	UserLabel     string `yaml:"user_label"`
	ReplyButton   string `yaml:"reply_button"`
	AllowButton   string `yaml:"allow_button"`
	RetakeGranted string `yaml:"retake_granted"`

	StartCommandDescription string `yaml:"start_command_description"`
	UsersCommandDescription string `yaml:"users_command_description"`
}

func (q Questionnaire) Len() int {
	return len(q.Questions)
}

func (q Questionnaire) Validate() error {
	if len(q.Questions) == 0 {
		return errors.New("questionnaire must contain at least one question")
	}
	for _, question := range q.Questions {
		if question == "" {
			return errors.New("questionnaire contains an empty question")
		}
	}
	for key, tmpl := range map[string]string{
		"reply_failed":   q.Messages.ReplyFailed,
		"user_button":    q.Messages.UserButton,
		"history_header": q.Messages.HistoryHeader,
		"retake_granted": q.Messages.RetakeGranted,
	} {
		if !singleIDVerb(tmpl) {
			return fmt.Errorf("message %s must contain exactly one %%d and no other verbs", key)
		}
	}
	return nil
}

// singleIDVerb reports whether tmpl formats exactly one integer.
func singleIDVerb(tmpl string) bool {
	rest := strings.ReplaceAll(tmpl, "%%", "")
	return strings.Count(rest, "%") == 1 && strings.Count(rest, "%d") == 1
}

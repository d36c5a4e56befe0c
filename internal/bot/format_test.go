package bot

import (
	"strings"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"repost-warden/internal/model"
)

func TestMessageLink(t *testing.T) {
	link := messageLink(model.Origin{ChatID: -1001234567890, MessageID: 42})
	if link != "https://t.me/c/1234567890/42" {
		t.Fatalf("unexpected supergroup link: %s", link)
	}
	if got := messageLink(model.Origin{ChatID: -98765, MessageID: 42}); got != "" {
		t.Fatalf("basic groups have no public links, got %s", got)
	}
}

func TestFormatDuplicateNotice(t *testing.T) {
	notice := &model.DuplicateNotice{
		Kind:             model.KindImage,
		OriginalPoster:   model.Identity{ID: 7, DisplayName: "Ann"},
		OriginalPostedAt: time.Date(2026, 8, 10, 15, 4, 0, 0, time.UTC),
		OriginalOrigin:   model.Origin{ChatID: -1001234567890, MessageID: 42},
	}

	text := formatDuplicateNotice(notice)
	if !strings.Contains(text, "Ann") {
		t.Fatalf("notice must name the original poster: %q", text)
	}
	if !strings.Contains(text, "https://t.me/c/1234567890/42") {
		t.Fatalf("notice must link the original message: %q", text)
	}
}

func TestFormatDuplicateNoticeWithoutLink(t *testing.T) {
	notice := &model.DuplicateNotice{
		OriginalPoster:   model.Identity{ID: 7},
		OriginalPostedAt: time.Date(2026, 8, 10, 15, 4, 0, 0, time.UTC),
		OriginalOrigin:   model.Origin{ChatID: -98765, MessageID: 42},
	}

	text := formatDuplicateNotice(notice)
	if strings.Contains(text, "t.me") {
		t.Fatalf("non-supergroup notices must not fabricate a link: %q", text)
	}
	if !strings.Contains(text, "user 7") {
		t.Fatalf("nameless posters fall back to their id: %q", text)
	}
}

func TestFormatReportEmptyWindow(t *testing.T) {
	report := &model.Report{
		WindowStart: time.Date(2026, 8, 3, 0, 0, 0, 0, time.UTC),
		WindowEnd:   time.Date(2026, 8, 10, 0, 0, 0, 0, time.UTC),
	}
	text := formatReport(report)
	if !strings.Contains(text, "No activity") {
		t.Fatalf("empty report should say so: %q", text)
	}
}

func TestFormatReportSections(t *testing.T) {
	report := &model.Report{
		WindowStart: time.Date(2026, 8, 3, 0, 0, 0, 0, time.UTC),
		WindowEnd:   time.Date(2026, 8, 10, 0, 0, 0, 0, time.UTC),
		TopContributors: []model.ContributorStat{
			{User: model.Identity{ID: 1, DisplayName: "A"}, Messages: 10},
			{User: model.Identity{ID: 2, DisplayName: "B"}, Messages: 4},
		},
		MediaBreakdown: map[model.MediaKind]int64{model.KindImage: 3},
		TopOffenders: []model.OffenderStat{
			{User: model.Identity{ID: 2, DisplayName: "B"}, Duplicates: 3},
		},
		TopEngagement: &model.EngagementStat{User: model.Identity{ID: 1, DisplayName: "A"}, Reactions: 12},
	}

	text := formatReport(report)
	for _, want := range []string{"1. A - 10 messages", "image: 3", "1. B - 3 reposts", "Most reactions: A (12)"} {
		if !strings.Contains(text, want) {
			t.Fatalf("report missing %q:\n%s", want, text)
		}
	}
}

func TestClassify(t *testing.T) {
	cases := []struct {
		name string
		msg  tgbotapi.Message
		kind model.MediaKind
		file string
	}{
		{
			name: "largest photo wins",
			msg: tgbotapi.Message{Photo: []tgbotapi.PhotoSize{
				{FileID: "small"}, {FileID: "large"},
			}},
			kind: model.KindImage,
			file: "large",
		},
		{
			name: "video",
			msg:  tgbotapi.Message{Video: &tgbotapi.Video{FileID: "v"}},
			kind: model.KindVideo,
			file: "v",
		},
		{
			name: "document",
			msg:  tgbotapi.Message{Document: &tgbotapi.Document{FileID: "d"}},
			kind: model.KindDocument,
			file: "d",
		},
		{
			name: "text",
			msg:  tgbotapi.Message{Text: "hello"},
			kind: model.KindText,
		},
		{
			name: "empty message",
			msg:  tgbotapi.Message{},
			kind: model.KindUnknown,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			kind, file := classify(&tc.msg)
			if kind != tc.kind || file != tc.file {
				t.Fatalf("expected (%s, %q), got (%s, %q)", tc.kind, tc.file, kind, file)
			}
		})
	}
}

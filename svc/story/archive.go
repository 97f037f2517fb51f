package story

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/talewise/storyteller/pkg/logger"
)

type archivedStory struct {
	ID               string    `json:"id"`
	UserID           string    `json:"userId"`
	Title            string    `json:"title"`
	Content          string    `json:"content"`
	Parameters       Params    `json:"parameters"`
	AudioGenerations int       `json:"audioGenerations"`
	CreatedAt        time.Time `json:"createdAt"`
}

// ArchiveKey is where a story's archive copy lives.
func ArchiveKey(st *Story) string {
	return fmt.Sprintf("stories/%s/%s.json", st.CreatedAt.UTC().Format("2006/01"), st.ID)
}

func (s *Service) archiveStory(ctx context.Context, log *slog.Logger, st *Story) {
	if s.archive == nil {
		return
	}
	data, err := json.Marshal(archivedStory{
		ID:               st.ID.String(),
		UserID:           st.UserID.String(),
		Title:            st.Title,
		Content:          st.Content,
		Parameters:       st.Parameters,
		AudioGenerations: st.AudioGenerations,
		CreatedAt:        st.CreatedAt,
	})
	if err == nil {
		err = s.archive.Put(ctx, ArchiveKey(st), "application/json", data)
	}
	if err != nil {
		log.WarnContext(ctx, "failed to archive story", logger.StoryID(st.ID), logger.Error(err))
	}
}

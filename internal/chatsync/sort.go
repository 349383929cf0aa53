package chatsync

import (
	"sort"

	"hms-sync/internal/models"
)

func sortByCreated(msgs []models.Message) {
	sort.SliceStable(msgs, func(i, j int) bool {
		return msgs[i].CreatedAt.Before(msgs[j].CreatedAt)
	})
}

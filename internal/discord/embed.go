package discord

import (
	"time"

	"rsm-inventory-bot/internal/model"

	"github.com/bwmarrin/discordgo"
)

// Embed converts a summary into a chat embed with one inline field per row.
func Embed(s *model.Summary) *discordgo.MessageEmbed {
	e := &discordgo.MessageEmbed{
		Title:       s.Title,
		Description: s.Description,
		Color:       s.Color,
		Timestamp:   s.Timestamp.Format(time.RFC3339),
		Fields:      make([]*discordgo.MessageEmbedField, 0, len(s.Rows)),
	}
	if s.Author.Name != "" {
		e.Author = &discordgo.MessageEmbedAuthor{Name: s.Author.Name, IconURL: s.Author.IconURL}
	}
	if s.ThumbnailURL != "" {
		e.Thumbnail = &discordgo.MessageEmbedThumbnail{URL: s.ThumbnailURL}
	}
	for _, row := range s.Rows {
		e.Fields = append(e.Fields, &discordgo.MessageEmbedField{
			Name:   row.Name,
			Value:  row.Value(),
			Inline: true,
		})
	}
	return e
}

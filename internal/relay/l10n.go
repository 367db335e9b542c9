package relay

import (
	"fmt"

	"github.com/roomly/signaling/internal/domain"
)

// Minimal message catalog for sweeper-built notification lines. The
// peer's locale was captured at registration; anything unknown falls
// back to English.

type invitationTexts struct {
	accepted string
	declined string
}

var invitationCatalog = map[domain.Locale]invitationTexts{
	"en": {
		accepted: "%s accepted your invitation to %s",
		declined: "%s declined your invitation to %s",
	},
	"ru": {
		accepted: "%s принял(а) приглашение в %s",
		declined: "%s отклонил(а) приглашение в %s",
	},
}

func invitationLine(loc domain.Locale, displayName string, reply domain.InvitationReply) string {
	texts, ok := invitationCatalog[loc]
	if !ok {
		texts = invitationCatalog["en"]
	}
	format := texts.declined
	if reply.Accepted {
		format = texts.accepted
	}
	line := fmt.Sprintf(format, displayName, reply.Room)
	if reply.Message != "" {
		line += ": " + reply.Message
	}
	return line
}

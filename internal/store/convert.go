package store

import (
	"time"

	"docchat/pkg/domain"
)

func userFromDoc(doc Document) domain.User {
	return domain.User{
		ID:           docString(doc, "_id"),
		Username:     docString(doc, "username"),
		Email:        docString(doc, "email"),
		PasswordHash: docString(doc, "password"),
		TotalCredits: docInt(doc, "total_credits"),
		IsActive:     docBool(doc, "is_active"),
		CreatedAt:    docTime(doc, "created_at"),
	}
}

func pdfFromDoc(doc Document) domain.ChatPDF {
	return domain.ChatPDF{
		ID:            docString(doc, "_id"),
		UserID:        docString(doc, "user"),
		File:          docString(doc, "file"),
		Status:        domain.PDFStatus(docString(doc, "status")),
		IsDeleted:     docBool(doc, "is_deleted"),
		AssistantID:   docString(doc, "assistant_id"),
		VectorStoreID: docString(doc, "vector_store_id"),
		NumPages:      docInt(doc, "num_pages"),
		CreatedAt:     docTime(doc, "created_at"),
	}
}

func messageFromDoc(doc Document) domain.ChatMessage {
	return domain.ChatMessage{
		ID:         docString(doc, "_id"),
		ChatPDFID:  docString(doc, "chat_pdf"),
		UserID:     docString(doc, "user"),
		Question:   docString(doc, "question"),
		Answer:     docString(doc, "answer"),
		TokenUsage: docInt(doc, "token_usage"),
		CreatedAt:  docTime(doc, "created_at"),
	}
}

func docString(doc Document, key string) string {
	s, _ := doc[key].(string)
	return s
}

func docBool(doc Document, key string) bool {
	b, _ := doc[key].(bool)
	return b
}

func docTime(doc Document, key string) time.Time {
	t, _ := doc[key].(time.Time)
	return t
}

// docInt tolerates the numeric types BSON decoding can produce.
func docInt(doc Document, key string) int {
	switch v := doc[key].(type) {
	case int:
		return v
	case int32:
		return int(v)
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}

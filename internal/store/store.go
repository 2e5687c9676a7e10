package store

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"

	"docchat/pkg/domain"
)

// Collection names.
const (
	CollUsers    = "users"
	CollChatPDF  = "chat_pdf"
	CollMessages = "chat_message"
	CollPrompts  = "ai_prompt"
)

// Store defines persistence operations for users, chat PDFs, and messages.
// Listing methods return normalized documents directly because their rows
// can embed joined fields that have no fixed struct shape.
type Store interface {
	// users
	CreateUser(ctx context.Context, username, email, passwordHash string, credits int) (domain.User, error)
	UserExists(ctx context.Context, username, email string) (bool, error)
	UserByUsername(ctx context.Context, username string) (domain.User, error)
	UserByID(ctx context.Context, id string) (domain.User, error)
	SetUserCredits(ctx context.Context, id string, credits int) (domain.User, error)

	// chat PDFs
	CreatePDF(ctx context.Context, pdf domain.ChatPDF) (domain.ChatPDF, error)
	PDFByID(ctx context.Context, id string) (domain.ChatPDF, error)
	SoftDeletePDF(ctx context.Context, id string) (Document, error)
	ListPDFsForUser(ctx context.Context, userID string) ([]Document, error)
	ListAllPDFs(ctx context.Context, page, pageLimit int, search string) ([]Document, int64, error)

	// messages
	InsertMessage(ctx context.Context, pdfID, userID, question string) (domain.ChatMessage, error)
	SetMessageAnswer(ctx context.Context, id, answer string) (domain.ChatMessage, error)
	SetMessageUsage(ctx context.Context, id string, usage int) (domain.ChatMessage, error)
	RecentAnsweredMessages(ctx context.Context, pdfID string, limit int) ([]domain.ChatMessage, error)
}

type gatewayStore struct {
	gw Gateway
}

// New builds a Store on top of a generic document gateway.
func New(gw Gateway) Store {
	return &gatewayStore{gw: gw}
}

func (s *gatewayStore) CreateUser(ctx context.Context, username, email, passwordHash string, credits int) (domain.User, error) {
	doc, err := s.gw.InsertOne(ctx, CollUsers, bson.M{
		"username":      username,
		"email":         email,
		"password":      passwordHash,
		"total_credits": credits,
		"is_active":     true,
		"created_at":    time.Now().UTC(),
	})
	if err != nil {
		return domain.User{}, err
	}
	return userFromDoc(doc), nil
}

func (s *gatewayStore) UserExists(ctx context.Context, username, email string) (bool, error) {
	_, err := s.gw.FindOne(ctx, CollUsers, bson.M{"$or": bson.A{
		bson.M{"username": username},
		bson.M{"email": email},
	}})
	if err == ErrNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *gatewayStore) UserByUsername(ctx context.Context, username string) (domain.User, error) {
	doc, err := s.gw.FindOne(ctx, CollUsers, bson.M{"username": username})
	if err != nil {
		return domain.User{}, err
	}
	return userFromDoc(doc), nil
}

func (s *gatewayStore) UserByID(ctx context.Context, id string) (domain.User, error) {
	oid, err := ObjectID(id)
	if err != nil {
		return domain.User{}, ErrNotFound
	}
	doc, err := s.gw.FindOne(ctx, CollUsers, bson.M{"_id": oid})
	if err != nil {
		return domain.User{}, err
	}
	return userFromDoc(doc), nil
}

func (s *gatewayStore) SetUserCredits(ctx context.Context, id string, credits int) (domain.User, error) {
	oid, err := ObjectID(id)
	if err != nil {
		return domain.User{}, ErrNotFound
	}
	doc, err := s.gw.FindOneAndUpdate(ctx, CollUsers,
		bson.M{"_id": oid},
		bson.M{"$set": bson.M{"total_credits": credits}},
	)
	if err != nil {
		return domain.User{}, err
	}
	return userFromDoc(doc), nil
}

func (s *gatewayStore) CreatePDF(ctx context.Context, pdf domain.ChatPDF) (domain.ChatPDF, error) {
	owner, err := ObjectID(pdf.UserID)
	if err != nil {
		return domain.ChatPDF{}, err
	}
	createdAt := pdf.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	doc, err := s.gw.InsertOne(ctx, CollChatPDF, bson.M{
		"user":            owner,
		"file":            pdf.File,
		"status":          string(pdf.Status),
		"is_deleted":      pdf.IsDeleted,
		"assistant_id":    pdf.AssistantID,
		"vector_store_id": pdf.VectorStoreID,
		"num_pages":       pdf.NumPages,
		"created_at":      createdAt,
	})
	if err != nil {
		return domain.ChatPDF{}, err
	}
	return pdfFromDoc(doc), nil
}

func (s *gatewayStore) PDFByID(ctx context.Context, id string) (domain.ChatPDF, error) {
	oid, err := ObjectID(id)
	if err != nil {
		return domain.ChatPDF{}, ErrNotFound
	}
	doc, err := s.gw.FindOne(ctx, CollChatPDF, bson.M{"_id": oid})
	if err != nil {
		return domain.ChatPDF{}, err
	}
	return pdfFromDoc(doc), nil
}

func (s *gatewayStore) SoftDeletePDF(ctx context.Context, id string) (Document, error) {
	oid, err := ObjectID(id)
	if err != nil {
		return nil, ErrNotFound
	}
	return s.gw.FindOneAndUpdate(ctx, CollChatPDF,
		bson.M{"_id": oid},
		bson.M{"$set": bson.M{"is_deleted": true}},
	)
}

// ListPDFsForUser surfaces the caller's live records that have at least one
// message, newest first.
func (s *gatewayStore) ListPDFsForUser(ctx context.Context, userID string) ([]Document, error) {
	oid, err := ObjectID(userID)
	if err != nil {
		return nil, ErrNotFound
	}
	pipeline := bson.A{
		bson.M{"$match": bson.M{"user": oid, "is_deleted": false}},
		bson.M{"$lookup": bson.M{
			"from":         CollMessages,
			"localField":   "_id",
			"foreignField": "chat_pdf",
			"as":           "chat_messages",
		}},
		bson.M{"$addFields": bson.M{"chat_message_count": bson.M{"$size": "$chat_messages"}}},
		bson.M{"$match": bson.M{"chat_message_count": bson.M{"$gt": 0}}},
		bson.M{"$sort": bson.M{"created_at": -1}},
		bson.M{"$project": bson.M{"chat_messages": 0, "chat_message_count": 0}},
	}
	return s.gw.Aggregate(ctx, CollChatPDF, pipeline)
}

// ListAllPDFs is the admin view: every live record with messages, joined with
// its owner, optionally filtered by a case-insensitive text match on the
// owner's name/email or the record name, paginated with a total count.
func (s *gatewayStore) ListAllPDFs(ctx context.Context, page, pageLimit int, search string) ([]Document, int64, error) {
	if page <= 0 {
		page = 1
	}
	if pageLimit <= 0 {
		pageLimit = 20
	}
	match := bson.M{"is_deleted": false}
	if search != "" {
		regex := bson.M{"$regex": search, "$options": "i"}
		match["$or"] = bson.A{
			bson.M{"user.name": regex},
			bson.M{"user.last_name": regex},
			bson.M{"user.email": regex},
			bson.M{"name": regex},
		}
	}
	hasMessages := bson.M{"$match": bson.M{"chat_message_count": bson.M{"$gt": 0}}}
	pipeline := bson.A{
		bson.M{"$lookup": bson.M{
			"from":         CollUsers,
			"localField":   "user",
			"foreignField": "_id",
			"as":           "user",
		}},
		bson.M{"$unwind": "$user"},
		bson.M{"$match": match},
		bson.M{"$lookup": bson.M{
			"from":         CollMessages,
			"localField":   "_id",
			"foreignField": "chat_pdf",
			"as":           "chat_messages",
		}},
		bson.M{"$addFields": bson.M{"chat_message_count": bson.M{"$size": "$chat_messages"}}},
		bson.M{"$facet": bson.M{
			"total": bson.A{hasMessages, bson.M{"$count": "count"}},
			"data": bson.A{
				hasMessages,
				bson.M{"$sort": bson.M{"created_at": -1}},
				bson.M{"$skip": (page - 1) * pageLimit},
				bson.M{"$limit": pageLimit},
				bson.M{"$project": bson.M{"chat_messages": 0, "chat_message_count": 0}},
			},
		}},
	}
	out, err := s.gw.Aggregate(ctx, CollChatPDF, pipeline)
	if err != nil {
		return nil, 0, err
	}
	if len(out) == 0 {
		return []Document{}, 0, nil
	}
	facet := out[0]
	var total int64
	if totals, ok := facet["total"].([]any); ok && len(totals) > 0 {
		if row, ok := totals[0].(Document); ok {
			total = int64(docInt(row, "count"))
		}
	}
	data := []Document{}
	if rows, ok := facet["data"].([]any); ok {
		for _, row := range rows {
			if doc, ok := row.(Document); ok {
				data = append(data, doc)
			}
		}
	}
	return data, total, nil
}

func (s *gatewayStore) InsertMessage(ctx context.Context, pdfID, userID, question string) (domain.ChatMessage, error) {
	pdfOID, err := ObjectID(pdfID)
	if err != nil {
		return domain.ChatMessage{}, err
	}
	userOID, err := ObjectID(userID)
	if err != nil {
		return domain.ChatMessage{}, err
	}
	doc, err := s.gw.InsertOne(ctx, CollMessages, bson.M{
		"chat_pdf":    pdfOID,
		"user":        userOID,
		"question":    question,
		"answer":      "",
		"token_usage": 0,
		"created_at":  time.Now().UTC(),
	})
	if err != nil {
		return domain.ChatMessage{}, err
	}
	return messageFromDoc(doc), nil
}

func (s *gatewayStore) SetMessageAnswer(ctx context.Context, id, answer string) (domain.ChatMessage, error) {
	return s.updateMessage(ctx, id, bson.M{"answer": answer})
}

func (s *gatewayStore) SetMessageUsage(ctx context.Context, id string, usage int) (domain.ChatMessage, error) {
	return s.updateMessage(ctx, id, bson.M{"token_usage": usage})
}

func (s *gatewayStore) updateMessage(ctx context.Context, id string, set bson.M) (domain.ChatMessage, error) {
	oid, err := ObjectID(id)
	if err != nil {
		return domain.ChatMessage{}, ErrNotFound
	}
	doc, err := s.gw.FindOneAndUpdate(ctx, CollMessages, bson.M{"_id": oid}, bson.M{"$set": set})
	if err != nil {
		return domain.ChatMessage{}, err
	}
	return messageFromDoc(doc), nil
}

// RecentAnsweredMessages returns up to limit answered exchanges for a PDF,
// newest first.
func (s *gatewayStore) RecentAnsweredMessages(ctx context.Context, pdfID string, limit int) ([]domain.ChatMessage, error) {
	oid, err := ObjectID(pdfID)
	if err != nil {
		return nil, ErrNotFound
	}
	docs, _, err := s.gw.FindMany(ctx, CollMessages,
		bson.M{"chat_pdf": oid, "answer": bson.M{"$ne": ""}},
		FindOptions{Sort: bson.D{{Key: "created_at", Value: -1}}},
	)
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(docs) > limit {
		docs = docs[:limit]
	}
	messages := make([]domain.ChatMessage, len(docs))
	for i, doc := range docs {
		messages[i] = messageFromDoc(doc)
	}
	return messages, nil
}

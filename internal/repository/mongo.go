package repository

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/fathima-sithara/chat-core/internal/models"
)

// Mongo implements the durable store over mongo collections. Transactions use
// driver sessions; the session context threads through the per-entity methods
// so operations inside RunTransaction join the same transaction.
type Mongo struct {
	client        *mongo.Client
	conversations *mongo.Collection
	participants  *mongo.Collection
	messages      *mongo.Collection
	reactions     *mongo.Collection
}

func NewMongo(ctx context.Context, uri, database string) (*Mongo, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, err
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, err
	}
	db := client.Database(database)
	m := &Mongo{
		client:        client,
		conversations: db.Collection("conversations"),
		participants:  db.Collection("participants"),
		messages:      db.Collection("messages"),
		reactions:     db.Collection("reactions"),
	}
	m.ensureIndexes(ctx)
	return m, nil
}

func (m *Mongo) ensureIndexes(ctx context.Context) {
	_, _ = m.conversations.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "type", Value: 1}, {Key: "member_ids", Value: 1}},
		Options: options.Index().SetName("type_members_idx"),
	})
	// direct_key is only set on direct conversations; sparse keeps groups out
	_, _ = m.conversations.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "direct_key", Value: 1}},
		Options: options.Index().SetUnique(true).SetSparse(true).SetName("direct_key_idx"),
	})
	_, _ = m.participants.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "conversation_id", Value: 1}, {Key: "user_id", Value: 1}},
		Options: options.Index().SetUnique(true).SetName("conv_user_idx"),
	})
	_, _ = m.messages.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "conversation_id", Value: 1}, {Key: "created_at", Value: -1}},
		Options: options.Index().SetName("conv_created_idx"),
	})
	_, _ = m.reactions.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "message_id", Value: 1}, {Key: "user_id", Value: 1}},
		Options: options.Index().SetUnique(true).SetName("msg_user_idx"),
	})
}

func (m *Mongo) Disconnect(ctx context.Context) error { return m.client.Disconnect(ctx) }

// Stores returns the bundle view. Presence is not mongo-backed; wire the redis
// implementation (or memory) into the returned Store.
func (m *Mongo) Stores() Store {
	return Store{
		Conversations: mongoConversations{m.conversations},
		Participants:  mongoParticipants{m.participants},
		Messages:      mongoMessages{m.messages},
		Reactions:     mongoReactions{m.reactions},
		Txn:           m,
	}
}

func (m *Mongo) RunTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	session, err := m.client.StartSession()
	if err != nil {
		return err
	}
	defer session.EndSession(ctx)
	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return nil, fn(sc)
	})
	return err
}

type mongoConversations struct{ coll *mongo.Collection }

func (r mongoConversations) Insert(ctx context.Context, c *models.Conversation) error {
	_, err := r.coll.InsertOne(ctx, c)
	if mongo.IsDuplicateKeyError(err) {
		return ErrDuplicateKey
	}
	return err
}

func (r mongoConversations) Get(ctx context.Context, id string) (*models.Conversation, error) {
	var c models.Conversation
	if err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&c); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNoDocument
		}
		return nil, err
	}
	return &c, nil
}

func (r mongoConversations) FindDirect(ctx context.Context, userA, userB string) (*models.Conversation, error) {
	filter := bson.M{"direct_key": models.DirectPairKey(userA, userB)}
	var c models.Conversation
	if err := r.coll.FindOne(ctx, filter).Decode(&c); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNoDocument
		}
		return nil, err
	}
	return &c, nil
}

func (r mongoConversations) SetMetadata(ctx context.Context, id string, title, icon *string) error {
	set := bson.M{}
	if title != nil {
		set["title"] = *title
	}
	if icon != nil {
		set["icon"] = *icon
	}
	if len(set) == 0 {
		return nil
	}
	res, err := r.coll.UpdateByID(ctx, id, bson.M{"$set": set})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNoDocument
	}
	return nil
}

func (r mongoConversations) SetLock(ctx context.Context, id string, locked bool, reason string) error {
	if !locked {
		reason = ""
	}
	res, err := r.coll.UpdateByID(ctx, id, bson.M{"$set": bson.M{"is_locked": locked, "lock_reason": reason}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNoDocument
	}
	return nil
}

func (r mongoConversations) ApplyLastMessage(ctx context.Context, id string, at time.Time) error {
	res, err := r.coll.UpdateByID(ctx, id, bson.M{"$max": bson.M{"last_message_at": at}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNoDocument
	}
	return nil
}

func (r mongoConversations) AddMember(ctx context.Context, id, userID string) error {
	filter := bson.M{"_id": id, "member_ids": bson.M{"$ne": userID}}
	update := bson.M{"$push": bson.M{"member_ids": userID}, "$inc": bson.M{"member_count": 1}}
	res, err := r.coll.UpdateOne(ctx, filter, update)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		// already a member or missing; distinguish the two
		_, err := r.Get(ctx, id)
		return err
	}
	return nil
}

func (r mongoConversations) RemoveMember(ctx context.Context, id, userID string) error {
	filter := bson.M{"_id": id, "member_ids": userID}
	update := bson.M{"$pull": bson.M{"member_ids": userID}, "$inc": bson.M{"member_count": -1}}
	res, err := r.coll.UpdateOne(ctx, filter, update)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		_, err := r.Get(ctx, id)
		return err
	}
	return nil
}

type mongoParticipants struct{ coll *mongo.Collection }

func (r mongoParticipants) Insert(ctx context.Context, p *models.Participant) error {
	_, err := r.coll.InsertOne(ctx, p)
	return err
}

func (r mongoParticipants) Get(ctx context.Context, conversationID, userID string) (*models.Participant, error) {
	var p models.Participant
	err := r.coll.FindOne(ctx, bson.M{"conversation_id": conversationID, "user_id": userID}).Decode(&p)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNoDocument
		}
		return nil, err
	}
	return &p, nil
}

func (r mongoParticipants) List(ctx context.Context, conversationID string) ([]*models.Participant, error) {
	cur, err := r.coll.Find(ctx, bson.M{"conversation_id": conversationID})
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	var out []*models.Participant
	for cur.Next(ctx) {
		var p models.Participant
		if err := cur.Decode(&p); err != nil {
			return nil, err
		}
		out = append(out, &p)
	}
	return out, cur.Err()
}

func (r mongoParticipants) set(ctx context.Context, conversationID, userID string, set bson.M) error {
	res, err := r.coll.UpdateOne(ctx, bson.M{"conversation_id": conversationID, "user_id": userID}, bson.M{"$set": set})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNoDocument
	}
	return nil
}

func (r mongoParticipants) SetTyping(ctx context.Context, conversationID, userID string, isTyping bool) error {
	return r.set(ctx, conversationID, userID, bson.M{"is_typing": isTyping})
}

func (r mongoParticipants) SetMuted(ctx context.Context, conversationID, userID string, isMuted bool) error {
	return r.set(ctx, conversationID, userID, bson.M{"is_muted": isMuted})
}

func (r mongoParticipants) SetLastRead(ctx context.Context, conversationID, userID string, at time.Time) error {
	return r.set(ctx, conversationID, userID, bson.M{"last_read_at": at})
}

func (r mongoParticipants) SetRole(ctx context.Context, conversationID, userID string, role models.Role) error {
	return r.set(ctx, conversationID, userID, bson.M{"role": role})
}

func (r mongoParticipants) Delete(ctx context.Context, conversationID, userID string) error {
	res, err := r.coll.DeleteOne(ctx, bson.M{"conversation_id": conversationID, "user_id": userID})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrNoDocument
	}
	return nil
}

type mongoMessages struct{ coll *mongo.Collection }

func (r mongoMessages) Insert(ctx context.Context, m *models.Message) error {
	_, err := r.coll.InsertOne(ctx, m)
	return err
}

func (r mongoMessages) Get(ctx context.Context, id string) (*models.Message, error) {
	var m models.Message
	if err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&m); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNoDocument
		}
		return nil, err
	}
	return &m, nil
}

func (r mongoMessages) SetText(ctx context.Context, id, text string, editedAt time.Time) error {
	res, err := r.coll.UpdateByID(ctx, id, bson.M{"$set": bson.M{"text": text, "edited_at": editedAt}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNoDocument
	}
	return nil
}

func (r mongoMessages) MarkDeleted(ctx context.Context, id string) error {
	res, err := r.coll.UpdateByID(ctx, id, bson.M{"$set": bson.M{"is_deleted": true}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNoDocument
	}
	return nil
}

func (r mongoMessages) List(ctx context.Context, conversationID string, page MessagePage) ([]*models.Message, error) {
	filter := bson.M{"conversation_id": conversationID}
	dir := -1
	if page.Ascending {
		dir = 1
	}
	if page.CursorID != "" {
		cmp := "$lt"
		if page.Ascending {
			cmp = "$gt"
		}
		filter["$or"] = bson.A{
			bson.M{"created_at": bson.M{cmp: page.CursorAt}},
			bson.M{"created_at": page.CursorAt, "_id": bson.M{cmp: page.CursorID}},
		}
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: dir}, {Key: "_id", Value: dir}}).
		SetLimit(int64(page.Limit))
	cur, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	var out []*models.Message
	for cur.Next(ctx) {
		var m models.Message
		if err := cur.Decode(&m); err != nil {
			return nil, err
		}
		out = append(out, &m)
	}
	return out, cur.Err()
}

type mongoReactions struct{ coll *mongo.Collection }

func (r mongoReactions) Upsert(ctx context.Context, rec *models.Reaction) error {
	filter := bson.M{"message_id": rec.MessageID, "user_id": rec.UserID}
	update := bson.M{"$set": bson.M{"value": rec.Value, "created_at": rec.CreatedAt}}
	_, err := r.coll.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
	return err
}

func (r mongoReactions) Delete(ctx context.Context, messageID, userID, value string) error {
	res, err := r.coll.DeleteOne(ctx, bson.M{"message_id": messageID, "user_id": userID, "value": value})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrNoDocument
	}
	return nil
}

func (r mongoReactions) ListByMessage(ctx context.Context, messageID string) ([]*models.Reaction, error) {
	cur, err := r.coll.Find(ctx, bson.M{"message_id": messageID})
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	var out []*models.Reaction
	for cur.Next(ctx) {
		var rec models.Reaction
		if err := cur.Decode(&rec); err != nil {
			return nil, err
		}
		out = append(out, &rec)
	}
	return out, cur.Err()
}

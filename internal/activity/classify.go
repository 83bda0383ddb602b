package activity

import (
	"bytes"
	"strings"
)

// Kind names the activity variant a transaction carries.
type Kind string

const (
	KindPost       Kind = "post"
	KindPostDelete Kind = "post_delete"
	KindComment    Kind = "comment"
	KindCounter    Kind = "counter"
	KindProfile    Kind = "profile"
	KindRelation   Kind = "relation"
	KindEmpty      Kind = "empty"
)

// ProcessingOrder lists the kinds in the order a cycle applies them: parents
// before the children that may reference them.
var ProcessingOrder = []Kind{KindPost, KindPostDelete, KindComment, KindCounter, KindProfile, KindRelation, KindEmpty}

// Activity is the closed set of decoded payload variants.
type Activity interface {
	Kind() Kind
	Transaction() Transaction
	sealed()
}

type envelope struct {
	trx Transaction
}

func (e envelope) Transaction() Transaction { return e.trx }

func (envelope) sealed() {}

// Post creates a top-level post, optionally forwarding another post.
type Post struct {
	envelope
	ID            string
	Content       string
	Images        []Image
	ForwardPostID string
}

func (Post) Kind() Kind { return KindPost }

// PostDelete marks a post as deleted by its publisher.
type PostDelete struct {
	envelope
	PostID string
}

func (PostDelete) Kind() Kind { return KindPostDelete }

// Comment replies to a post or to another comment.
type Comment struct {
	envelope
	ID      string
	Content string
	Images  []Image
	ReplyTo string
}

func (Comment) Kind() Kind { return KindComment }

// CounterType enumerates vote events.
type CounterType string

const (
	CounterLike        CounterType = "like"
	CounterDislike     CounterType = "dislike"
	CounterUndoLike    CounterType = "undolike"
	CounterUndoDislike CounterType = "undodislike"
)

// Counter is a vote on a post or comment.
type Counter struct {
	envelope
	ObjectID string
	Type     CounterType
}

func (Counter) Kind() Kind { return KindCounter }

// Profile publishes a new profile revision for the sender.
type Profile struct {
	envelope
	Name    string
	Avatar  string
	Wallet  []Wallet
	Subject string
}

func (Profile) Kind() Kind { return KindProfile }

// RelationType enumerates follow and block edges and their undo forms.
type RelationType string

const (
	RelationFollow     RelationType = "follow"
	RelationBlock      RelationType = "block"
	RelationUndoFollow RelationType = "undofollow"
	RelationUndoBlock  RelationType = "undoblock"
)

// Base strips the undo prefix.
func (t RelationType) Base() RelationType {
	return RelationType(strings.TrimPrefix(string(t), "undo"))
}

// Active reports whether the edge is being set rather than undone.
func (t RelationType) Active() bool {
	return !strings.HasPrefix(string(t), "undo")
}

// Relation is a directed edge from the sender to another publisher.
type Relation struct {
	envelope
	To   string
	Type RelationType
}

func (Relation) Kind() Kind { return KindRelation }

// Empty holds a transaction no rule recognized. It is stored verbatim so it
// can be reclassified later.
type Empty struct {
	envelope
	Reason string
}

func (Empty) Kind() Kind { return KindEmpty }

type classifyRule func(envelope, payload) (Activity, bool)

var classifyRules = []classifyRule{
	matchPostDelete,
	matchComment,
	matchCounter,
	matchProfile,
	matchRelation,
	matchPost,
}

// Classify maps one transaction to exactly one activity. It never fails:
// anything unrecognized or malformed becomes Empty.
func Classify(trx Transaction) Activity {
	env := envelope{trx: trx}
	if len(bytes.TrimSpace(trx.Data)) == 0 {
		return Empty{envelope: env, Reason: "empty payload"}
	}
	decoded, err := decodePayload(trx.Data)
	if err != nil {
		return Empty{envelope: env, Reason: "malformed payload"}
	}
	for _, rule := range classifyRules {
		if result, ok := rule(env, decoded); ok {
			return result
		}
	}
	return Empty{envelope: env, Reason: "unrecognized payload"}
}

func matchPostDelete(env envelope, p payload) (Activity, bool) {
	if !isType(p.Type, typeDelete) {
		return nil, false
	}
	postID := p.Object.id()
	if postID == "" {
		return Empty{envelope: env, Reason: "delete without object id"}, true
	}
	return PostDelete{envelope: env, PostID: postID}, true
}

func matchComment(env envelope, p payload) (Activity, bool) {
	if p.Object == nil || refID(p.Object.InReplyTo) == "" {
		return nil, false
	}
	return Comment{
		envelope: env,
		ID:       objectIDOrTrx(p.Object, env.trx),
		Content:  p.Object.Content,
		Images:   []Image(p.Object.Image),
		ReplyTo:  refID(p.Object.InReplyTo),
	}, true
}

func matchCounter(env envelope, p payload) (Activity, bool) {
	switch {
	case isType(p.Type, typeLike) && p.Object.id() != "":
		return Counter{envelope: env, ObjectID: p.Object.id(), Type: CounterLike}, true
	case isType(p.Type, typeDislike) && p.Object.id() != "":
		return Counter{envelope: env, ObjectID: p.Object.id(), Type: CounterDislike}, true
	case isType(p.Type, typeUndo) && p.Object != nil && p.Object.Object.id() != "":
		if isType(p.Object.Type, typeLike) {
			return Counter{envelope: env, ObjectID: p.Object.Object.id(), Type: CounterUndoLike}, true
		}
		if isType(p.Object.Type, typeDislike) {
			return Counter{envelope: env, ObjectID: p.Object.Object.id(), Type: CounterUndoDislike}, true
		}
	}
	return nil, false
}

func matchProfile(env envelope, p payload) (Activity, bool) {
	if p.Object == nil || p.Object.Describes == nil {
		return nil, false
	}
	profile := Profile{
		envelope: env,
		Name:     strings.TrimSpace(p.Object.Name),
		Wallet:   p.Object.Wallet,
		Subject:  refID(p.Object.Describes),
	}
	if len(p.Object.Image) > 0 {
		profile.Avatar = avatarURL(p.Object.Image[0])
	}
	return profile, true
}

func matchRelation(env envelope, p payload) (Activity, bool) {
	switch {
	case isType(p.Type, typeFollow) && p.Object.id() != "":
		return Relation{envelope: env, To: p.Object.id(), Type: RelationFollow}, true
	case isType(p.Type, typeBlock) && p.Object.id() != "":
		return Relation{envelope: env, To: p.Object.id(), Type: RelationBlock}, true
	case isType(p.Type, typeUndo) && p.Object != nil && p.Object.Object.id() != "":
		if isType(p.Object.Type, typeFollow) {
			return Relation{envelope: env, To: p.Object.Object.id(), Type: RelationUndoFollow}, true
		}
		if isType(p.Object.Type, typeBlock) {
			return Relation{envelope: env, To: p.Object.Object.id(), Type: RelationUndoBlock}, true
		}
	case !isType(p.Type, typeUndo) && p.Object != nil && relationTarget(p.Object) != "":
		if isType(p.Object.Type, typeFollow) {
			return Relation{envelope: env, To: relationTarget(p.Object), Type: RelationFollow}, true
		}
		if isType(p.Object.Type, typeBlock) {
			return Relation{envelope: env, To: relationTarget(p.Object), Type: RelationBlock}, true
		}
	}
	return nil, false
}

// relationTarget reads the followed or blocked publisher of an edge carried
// as the object, preferring its nested object over its own id.
func relationTarget(object *payloadObject) string {
	if id := object.Object.id(); id != "" {
		return id
	}
	return object.id()
}

func matchPost(env envelope, p payload) (Activity, bool) {
	if !p.Object.hasContent() || p.Object.InReplyTo != nil {
		return nil, false
	}
	return Post{
		envelope:      env,
		ID:            objectIDOrTrx(p.Object, env.trx),
		Content:       p.Object.Content,
		Images:        []Image(p.Object.Image),
		ForwardPostID: refID(p.Object.Forward),
	}, true
}

func objectIDOrTrx(object *payloadObject, trx Transaction) string {
	if id := object.id(); id != "" {
		return id
	}
	return trx.TrxID
}

func avatarURL(image Image) string {
	if image.URL != "" {
		return image.URL
	}
	if image.Content == "" {
		return ""
	}
	mediaType := image.MediaType
	if mediaType == "" {
		mediaType = "image/png"
	}
	return "data:" + mediaType + ";base64," + image.Content
}

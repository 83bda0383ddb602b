package activity

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func testTransaction(data string) Transaction {
	return Transaction{
		TrxID:        "trx-1",
		GroupID:      "group-1",
		SenderPubkey: "sender",
		TimeStamp:    100,
		Data:         []byte(data),
	}
}

func TestClassifyKinds(testContext *testing.T) {
	testCases := []struct {
		name string
		data string
		want Kind
	}{
		{name: "post", data: `{"type":"Create","object":{"type":"Note","id":"p1","content":"hello"}}`, want: KindPost},
		{name: "post with images only", data: `{"type":"Create","object":{"type":"Note","image":[{"mediaType":"image/png","content":"AQID"}]}}`, want: KindPost},
		{name: "delete", data: `{"type":"Delete","object":{"type":"Note","id":"p1"}}`, want: KindPostDelete},
		{name: "delete wins over inreplyto", data: `{"type":"Delete","object":{"type":"Note","id":"c1","inreplyto":{"type":"Note","id":"p1"}}}`, want: KindPostDelete},
		{name: "comment", data: `{"type":"Create","object":{"type":"Note","id":"c1","content":"hi","inreplyto":{"type":"Note","id":"p1"}}}`, want: KindComment},
		{name: "like", data: `{"type":"Like","object":{"type":"Note","id":"p1"}}`, want: KindCounter},
		{name: "dislike", data: `{"type":"Dislike","object":{"type":"Note","id":"p1"}}`, want: KindCounter},
		{name: "undo like", data: `{"type":"Undo","object":{"type":"Like","object":{"type":"Note","id":"p1"}}}`, want: KindCounter},
		{name: "profile", data: `{"type":"Create","object":{"type":"Profile","name":"alice","describes":{"type":"Person","id":"0xabc"}}}`, want: KindProfile},
		{name: "follow", data: `{"type":"Follow","object":{"type":"Person","id":"bob"}}`, want: KindRelation},
		{name: "undo block", data: `{"type":"Undo","object":{"type":"Block","object":{"type":"Person","id":"bob"}}}`, want: KindRelation},
		{name: "malformed", data: `{"type":`, want: KindEmpty},
		{name: "empty data", data: ``, want: KindEmpty},
		{name: "unknown shape", data: `{"type":"Announce","object":{"type":"Note"}}`, want: KindEmpty},
		{name: "delete without id", data: `{"type":"Delete","object":{"type":"Note"}}`, want: KindEmpty},
		{name: "undo unknown", data: `{"type":"Undo","object":{"type":"Announce","object":{"id":"x"}}}`, want: KindEmpty},
	}

	for _, testCase := range testCases {
		testContext.Run(testCase.name, func(t *testing.T) {
			got := Classify(testTransaction(testCase.data)).Kind()
			if got != testCase.want {
				t.Fatalf("expected kind %s, got %s", testCase.want, got)
			}
		})
	}
}

func TestClassifyExtractsCommentFields(testContext *testing.T) {
	result := Classify(testTransaction(`{"type":"Create","object":{"type":"Note","id":"c1","content":"reply","image":{"mediaType":"image/jpeg","content":"AQID"},"inreplyto":{"type":"Note","id":"p1"}}}`))
	comment, ok := result.(Comment)
	if !ok {
		testContext.Fatalf("expected comment, got %T", result)
	}
	want := Comment{
		envelope: comment.envelope,
		ID:       "c1",
		Content:  "reply",
		Images:   []Image{{MediaType: "image/jpeg", Content: "AQID"}},
		ReplyTo:  "p1",
	}
	if diff := cmp.Diff(want, comment, cmp.AllowUnexported(Comment{}, envelope{})); diff != "" {
		testContext.Fatalf("comment mismatch (-want +got):\n%s", diff)
	}
}

func TestClassifyCounterTypes(testContext *testing.T) {
	testCases := []struct {
		data string
		want Counter
	}{
		{data: `{"type":"Like","object":{"type":"Note","id":"p1"}}`, want: Counter{ObjectID: "p1", Type: CounterLike}},
		{data: `{"type":"Dislike","object":{"type":"Note","id":"p2"}}`, want: Counter{ObjectID: "p2", Type: CounterDislike}},
		{data: `{"type":"Undo","object":{"type":"Like","object":{"type":"Note","id":"p3"}}}`, want: Counter{ObjectID: "p3", Type: CounterUndoLike}},
		{data: `{"type":"Undo","object":{"type":"Dislike","object":{"type":"Note","id":"p4"}}}`, want: Counter{ObjectID: "p4", Type: CounterUndoDislike}},
	}
	for _, testCase := range testCases {
		counter, ok := Classify(testTransaction(testCase.data)).(Counter)
		if !ok {
			testContext.Fatalf("expected counter for %s", testCase.data)
		}
		got := Counter{ObjectID: counter.ObjectID, Type: counter.Type}
		if diff := cmp.Diff(testCase.want, got, cmp.AllowUnexported(Counter{}, envelope{})); diff != "" {
			testContext.Fatalf("counter mismatch (-want +got):\n%s", diff)
		}
	}
}

func TestClassifyRelationShapes(testContext *testing.T) {
	testCases := []struct {
		name     string
		data     string
		wantTo   string
		wantType RelationType
	}{
		{name: "activity type follow", data: `{"type":"Follow","object":{"type":"Person","id":"bob"}}`, wantTo: "bob", wantType: RelationFollow},
		{name: "object type follow with nested person", data: `{"type":"Create","object":{"type":"Follow","object":{"type":"Person","id":"bob"}}}`, wantTo: "bob", wantType: RelationFollow},
		{name: "object type block with own id", data: `{"type":"Create","object":{"type":"Block","id":"carol"}}`, wantTo: "carol", wantType: RelationBlock},
		{name: "undo follow", data: `{"type":"Undo","object":{"type":"Follow","object":{"type":"Person","id":"bob"}}}`, wantTo: "bob", wantType: RelationUndoFollow},
	}
	for _, testCase := range testCases {
		testContext.Run(testCase.name, func(t *testing.T) {
			relation, ok := Classify(testTransaction(testCase.data)).(Relation)
			if !ok {
				t.Fatalf("expected relation for %s", testCase.data)
			}
			if relation.To != testCase.wantTo || relation.Type != testCase.wantType {
				t.Fatalf("expected %s edge to %s, got %s edge to %s", testCase.wantType, testCase.wantTo, relation.Type, relation.To)
			}
		})
	}

	if kind := Classify(testTransaction(`{"type":"Undo","object":{"type":"Follow","id":"bob"}}`)).Kind(); kind != KindEmpty {
		testContext.Fatalf("expected undo without a nested target to stay empty, got %s", kind)
	}
}

func TestClassifyPostFallsBackToTrxIDAndReadsForward(testContext *testing.T) {
	result := Classify(testTransaction(`{"type":"Create","object":{"type":"Note","content":"shared","forward":{"type":"Note","id":"p0"}}}`))
	post, ok := result.(Post)
	if !ok {
		testContext.Fatalf("expected post, got %T", result)
	}
	if post.ID != "trx-1" {
		testContext.Fatalf("expected trx id fallback, got %q", post.ID)
	}
	if post.ForwardPostID != "p0" {
		testContext.Fatalf("expected forward post id p0, got %q", post.ForwardPostID)
	}
}

func TestClassifyProfileBuildsAvatar(testContext *testing.T) {
	result := Classify(testTransaction(`{"type":"Create","object":{"type":"Profile","name":" alice ","image":{"mediaType":"image/png","content":"AQID"},"wallet":[{"id":"w1","type":"mixin","name":"main"}],"describes":{"type":"Person","id":"0xabc"}}}`))
	profile, ok := result.(Profile)
	if !ok {
		testContext.Fatalf("expected profile, got %T", result)
	}
	if profile.Name != "alice" {
		testContext.Fatalf("expected trimmed name, got %q", profile.Name)
	}
	if profile.Avatar != "data:image/png;base64,AQID" {
		testContext.Fatalf("unexpected avatar %q", profile.Avatar)
	}
	if profile.Subject != "0xabc" {
		testContext.Fatalf("unexpected subject %q", profile.Subject)
	}
	if len(profile.Wallet) != 1 || profile.Wallet[0].ID != "w1" {
		testContext.Fatalf("unexpected wallet %#v", profile.Wallet)
	}
}

func TestRelationTypeBase(testContext *testing.T) {
	if RelationUndoFollow.Base() != RelationFollow || RelationUndoFollow.Active() {
		testContext.Fatalf("undo follow should map to inactive follow")
	}
	if RelationBlock.Base() != RelationBlock || !RelationBlock.Active() {
		testContext.Fatalf("block should be active block")
	}
}

func TestTransactionRoundTripsTimestampFormats(testContext *testing.T) {
	items, err := DecodeTransactions([]byte(`[{"TrxId":"a","GroupId":"g","TimeStamp":"1700000000000000001","Data":{"type":"Like"}},{"TrxId":"b","GroupId":"g","TimeStamp":42}]`))
	if err != nil {
		testContext.Fatalf("decode failed: %v", err)
	}
	if items[0].TimeStamp.Int64() != 1700000000000000001 || items[1].TimeStamp.Int64() != 42 {
		testContext.Fatalf("unexpected timestamps %d %d", items[0].TimeStamp, items[1].TimeStamp)
	}

	encoded, err := items[0].Encode()
	if err != nil {
		testContext.Fatalf("encode failed: %v", err)
	}
	decoded, err := DecodeTransaction([]byte(encoded))
	if err != nil {
		testContext.Fatalf("decode stored failed: %v", err)
	}
	if decoded.TrxID != "a" || decoded.TimeStamp != items[0].TimeStamp {
		testContext.Fatalf("round trip mismatch: %#v", decoded)
	}
	if Classify(decoded).Kind() != KindEmpty {
		testContext.Fatalf("like without object should stay empty")
	}
}

func TestSortByTimestampBreaksTiesByTrxID(testContext *testing.T) {
	items := []Transaction{
		{TrxID: "c", TimeStamp: 5},
		{TrxID: "b", TimeStamp: 1},
		{TrxID: "a", TimeStamp: 5},
	}
	SortByTimestamp(items)
	got := []string{items[0].TrxID, items[1].TrxID, items[2].TrxID}
	if diff := cmp.Diff([]string{"b", "a", "c"}, got); diff != "" {
		testContext.Fatalf("order mismatch (-want +got):\n%s", diff)
	}
}

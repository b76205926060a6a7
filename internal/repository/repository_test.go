package repository

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/damoang/angple-market/internal/domain"
	"github.com/damoang/angple-market/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func createUser(t *testing.T, db *gorm.DB, email string) *domain.User {
	t.Helper()
	u := &domain.User{Email: email, PasswordHash: "x"}
	require.NoError(t, NewUserRepository(db).Create(context.Background(), u))
	return u
}

func createConversation(t *testing.T, db *gorm.DB, a, b *domain.User) *domain.Conversation {
	t.Helper()
	conv := &domain.Conversation{PairKey: domain.PairKey(a.ID, b.ID)}
	require.NoError(t, NewConversationRepository(db).CreateWithParticipants(context.Background(), conv, a.ID, b.ID))
	return conv
}

func TestUserRepository_DuplicateEmail(t *testing.T) {
	db := testutil.NewDB(t)
	repo := NewUserRepository(db)
	ctx := context.Background()

	createUser(t, db, "a@x.com")
	err := repo.Create(ctx, &domain.User{Email: "a@x.com", PasswordHash: "y"})
	assert.True(t, IsDuplicateKey(err))

	found, err := repo.FindByEmail(ctx, "a@x.com")
	require.NoError(t, err)
	ok, err := repo.Exists(ctx, found.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = repo.FindByID(ctx, 999)
	assert.True(t, IsNotFound(err))
}

func TestConversationRepository_PairKeyUnique(t *testing.T) {
	db := testutil.NewDB(t)
	repo := NewConversationRepository(db)
	ctx := context.Background()
	a := createUser(t, db, "a@x.com")
	b := createUser(t, db, "b@x.com")

	conv := createConversation(t, db, a, b)
	assert.Len(t, conv.Participants, 2)

	dup := &domain.Conversation{PairKey: domain.PairKey(b.ID, a.ID)}
	err := repo.CreateWithParticipants(ctx, dup, b.ID, a.ID)
	assert.True(t, IsDuplicateKey(err))

	// the failed transaction must not leave orphan rows behind
	var convCount, partCount int64
	db.Model(&domain.Conversation{}).Count(&convCount)
	db.Model(&domain.ConversationParticipant{}).Count(&partCount)
	assert.Equal(t, int64(1), convCount)
	assert.Equal(t, int64(2), partCount)

	found, err := repo.FindByPairKey(ctx, domain.PairKey(a.ID, b.ID))
	require.NoError(t, err)
	assert.Equal(t, conv.ID, found.ID)
	require.Len(t, found.Participants, 2)
	assert.NotNil(t, found.Participants[0].User)
}

func TestConversationRepository_IsParticipant(t *testing.T) {
	db := testutil.NewDB(t)
	repo := NewConversationRepository(db)
	ctx := context.Background()
	a := createUser(t, db, "a@x.com")
	b := createUser(t, db, "b@x.com")
	c := createUser(t, db, "c@x.com")
	conv := createConversation(t, db, a, b)

	ok, err := repo.IsParticipant(ctx, conv.ID, a.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.IsParticipant(ctx, conv.ID, c.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = repo.IsParticipant(ctx, conv.ID+100, a.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	ids, err := repo.ParticipantIDs(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, []uint64{a.ID, b.ID}, ids)

	ids, err = repo.ParticipantIDs(ctx, conv.ID+100)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestMessageRepository_AppendTouchesConversation(t *testing.T) {
	db := testutil.NewDB(t)
	ctx := context.Background()
	a := createUser(t, db, "a@x.com")
	b := createUser(t, db, "b@x.com")
	conv := createConversation(t, db, a, b)

	at := time.Now().Add(time.Minute).UTC().Truncate(time.Second)
	msg := &domain.Message{ConversationID: conv.ID, SenderID: a.ID, Content: "hola", CreatedAt: at}
	require.NoError(t, NewMessageRepository(db).Append(ctx, msg))
	assert.NotZero(t, msg.ID)

	reloaded, err := NewConversationRepository(db).FindByID(ctx, conv.ID)
	require.NoError(t, err)
	assert.True(t, reloaded.UpdatedAt.Equal(at), "updated_at %v, want %v", reloaded.UpdatedAt, at)
}

func TestMessageRepository_AppendNeverMovesActivityBack(t *testing.T) {
	db := testutil.NewDB(t)
	repo := NewMessageRepository(db)
	ctx := context.Background()
	a := createUser(t, db, "a@x.com")
	b := createUser(t, db, "b@x.com")
	conv := createConversation(t, db, a, b)

	newer := time.Now().Add(2 * time.Minute).UTC().Truncate(time.Second)
	older := newer.Add(-time.Minute)
	require.NoError(t, repo.Append(ctx, &domain.Message{ConversationID: conv.ID, SenderID: a.ID, Content: "late commit", CreatedAt: newer}))
	require.NoError(t, repo.Append(ctx, &domain.Message{ConversationID: conv.ID, SenderID: b.ID, Content: "early stamp", CreatedAt: older}))

	reloaded, err := NewConversationRepository(db).FindByID(ctx, conv.ID)
	require.NoError(t, err)
	assert.True(t, reloaded.UpdatedAt.Equal(newer), "updated_at %v, want %v", reloaded.UpdatedAt, newer)
}

func TestPastEnd(t *testing.T) {
	assert.True(t, pastEnd(1, 20, 0), "an empty list has no rows to read")
	assert.False(t, pastEnd(2, 2, 3))
	assert.True(t, pastEnd(3, 2, 3))
	assert.True(t, pastEnd(math.MaxInt, 100, 3))
}

func TestMessageRepository_ListOrderAndPaging(t *testing.T) {
	db := testutil.NewDB(t)
	repo := NewMessageRepository(db)
	ctx := context.Background()
	a := createUser(t, db, "a@x.com")
	b := createUser(t, db, "b@x.com")
	conv := createConversation(t, db, a, b)

	base := time.Now().UTC().Truncate(time.Second)
	for i, content := range []string{"m1", "m2", "m3", "m4", "m5"} {
		sender := a.ID
		if i%2 == 1 {
			sender = b.ID
		}
		// m3 and m4 share a timestamp; id breaks the tie
		offset := time.Duration(i) * time.Second
		if i == 3 {
			offset = 2 * time.Second
		}
		require.NoError(t, repo.Append(ctx, &domain.Message{
			ConversationID: conv.ID, SenderID: sender, Content: content, CreatedAt: base.Add(offset),
		}))
	}

	items, total, err := repo.ListByConversation(ctx, conv.ID, 1, 3)
	require.NoError(t, err)
	assert.Equal(t, int64(5), total)
	require.Len(t, items, 3)
	assert.Equal(t, []string{"m1", "m2", "m3"}, contents(items))
	assert.NotNil(t, items[0].Sender)

	items, _, err = repo.ListByConversation(ctx, conv.ID, 2, 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"m4", "m5"}, contents(items))

	items, _, err = repo.ListByConversation(ctx, conv.ID, 3, 3)
	require.NoError(t, err)
	assert.Empty(t, items)

	items, total, err = repo.ListByConversation(ctx, conv.ID, math.MaxInt, 100)
	require.NoError(t, err)
	assert.Equal(t, int64(5), total)
	assert.NotNil(t, items)
	assert.Empty(t, items, "a page number that would overflow the offset is past the end")
}

func TestMessageRepository_LastByConversations(t *testing.T) {
	db := testutil.NewDB(t)
	repo := NewMessageRepository(db)
	ctx := context.Background()
	a := createUser(t, db, "a@x.com")
	b := createUser(t, db, "b@x.com")
	c := createUser(t, db, "c@x.com")
	ab := createConversation(t, db, a, b)
	ac := createConversation(t, db, a, c)

	for _, content := range []string{"first", "second"} {
		require.NoError(t, repo.Append(ctx, &domain.Message{ConversationID: ab.ID, SenderID: a.ID, Content: content}))
	}

	last, err := repo.LastByConversations(ctx, []uint64{ab.ID, ac.ID})
	require.NoError(t, err)
	require.Contains(t, last, ab.ID)
	assert.Equal(t, "second", last[ab.ID].Content)
	assert.NotContains(t, last, ac.ID)

	empty, err := repo.LastByConversations(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestConversationRepository_ListByUserOrder(t *testing.T) {
	db := testutil.NewDB(t)
	ctx := context.Background()
	a := createUser(t, db, "a@x.com")
	b := createUser(t, db, "b@x.com")
	c := createUser(t, db, "c@x.com")
	ab := createConversation(t, db, a, b)
	ac := createConversation(t, db, a, c)
	bc := createConversation(t, db, b, c)

	// activity in ab after ac was created moves ab to the top
	require.NoError(t, NewMessageRepository(db).Append(ctx, &domain.Message{
		ConversationID: ab.ID, SenderID: b.ID, Content: "ping", CreatedAt: time.Now().Add(time.Hour),
	}))

	convs, err := NewConversationRepository(db).ListByUser(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, convs, 2)
	assert.Equal(t, ab.ID, convs[0].ID)
	assert.Equal(t, ac.ID, convs[1].ID)
	for _, conv := range convs {
		assert.NotEqual(t, bc.ID, conv.ID)
		assert.Len(t, conv.Participants, 2)
	}
}

func TestProductRepository_ListByCategory(t *testing.T) {
	db := testutil.NewDB(t)
	ctx := context.Background()
	seller := createUser(t, db, "s@x.com")
	cats := NewCategoryRepository(db)
	products := NewProductRepository(db)

	tech := &domain.Category{Name: "Tech"}
	home := &domain.Category{Name: "Home"}
	require.NoError(t, cats.Create(ctx, tech))
	require.NoError(t, cats.Create(ctx, home))
	assert.True(t, IsDuplicateKey(cats.Create(ctx, &domain.Category{Name: "Tech"})))

	p1 := &domain.Product{Name: "Phone", Price: "10.00", SellerID: seller.ID, Categories: []*domain.Category{tech}}
	p2 := &domain.Product{Name: "Lamp", Price: "5.50", SellerID: seller.ID, Categories: []*domain.Category{home, tech}}
	p3 := &domain.Product{Name: "Chair", Price: "7.00", SellerID: seller.ID, Categories: []*domain.Category{home}}
	for _, p := range []*domain.Product{p1, p2, p3} {
		require.NoError(t, products.Create(ctx, p))
	}

	list, total, err := products.List(ctx, domain.ProductFilter{CategoryID: tech.ID, Page: 1, PageSize: 10})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	require.Len(t, list, 2)
	assert.Equal(t, p2.ID, list[0].ID, "newest first")
	assert.Equal(t, "5.50", list[0].Price)
	assert.Len(t, list[0].Categories, 2)
	assert.NotNil(t, list[0].Seller)

	all, total, err := products.List(ctx, domain.ProductFilter{Page: 1, PageSize: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	assert.Len(t, all, 2)

	require.NoError(t, products.Update(ctx, &domain.Product{ID: p1.ID, Name: "Phone X", Price: "12.00", UpdatedAt: time.Now()}, []*domain.Category{home}))
	reloaded, err := products.FindByID(ctx, p1.ID)
	require.NoError(t, err)
	assert.Equal(t, "Phone X", reloaded.Name)
	require.Len(t, reloaded.Categories, 1)
	assert.Equal(t, home.ID, reloaded.Categories[0].ID)

	require.NoError(t, products.Delete(ctx, p1.ID))
	_, err = products.FindByID(ctx, p1.ID)
	assert.True(t, IsNotFound(err))

	names, err := cats.FindAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Home", names[0].Name)
}

func contents(msgs []*domain.Message) []string {
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.Content)
	}
	return out
}

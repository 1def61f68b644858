// Package convstore persists chats, branches, and the branchable message
// graph against Postgres. Grounded on the teacher's
// memory/stores/postgres/postgres.go for the table-per-store,
// config-struct-with-required-DB shape (translated from that file's
// jackc/pgx driver to database/sql + github.com/lib/pq, the Postgres
// stack actually present in this module's dependencies) and on
// memory/chat_message_history.go for the Append/GetMessages/Clear
// vocabulary generalized to a branchable parent-pointer graph. The
// branch-view hot cache is grounded on cache/providers/inmemory's
// map-plus-doubly-linked-list LRU shape.
package convstore

import (
	"container/list"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/Ace-Of-Snakes/agent-rag-env/internal/apperr"
	"github.com/Ace-Of-Snakes/agent-rag-env/internal/ids"
	"github.com/Ace-Of-Snakes/agent-rag-env/internal/llmclient"
	"github.com/Ace-Of-Snakes/agent-rag-env/internal/obs"
	"github.com/Ace-Of-Snakes/agent-rag-env/internal/schema"
)

// Store persists Chat/Branch/Message rows and caches branch-view reads.
type Store struct {
	db      *sql.DB
	llm     *llmclient.Client
	cache   *hotCache
	metrics *obs.ComponentMetrics
	now     func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithTitleGenerator attaches a text model used by CreateChat to derive a
// title from the initial message when none was supplied.
func WithTitleGenerator(llm *llmclient.Client) Option {
	return func(s *Store) { s.llm = llm }
}

// WithMetrics attaches a ComponentMetrics recorder.
func WithMetrics(m *obs.ComponentMetrics) Option {
	return func(s *Store) { s.metrics = m }
}

// WithCacheSize bounds the branch-view hot cache's entry count.
func WithCacheSize(n int) Option {
	return func(s *Store) { s.cache = newHotCache(n) }
}

// New creates a Store over an already-opened pool.
func New(db *sql.DB, opts ...Option) *Store {
	s := &Store{db: db, cache: newHotCache(512), now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) record(ctx context.Context, op string, start time.Time, err error) {
	if s.metrics == nil {
		return
	}
	s.metrics.RecordOp(ctx, op, start, err)
}

// CreateChat creates a chat with the default "main" branch. If an initial
// user message is given, it is inserted as the root message; when no
// title was supplied, a short title is requested from the text model,
// matching spec.md §4.H.
func (s *Store) CreateChat(ctx context.Context, title string, initialMessage *string) (*schema.Chat, error) {
	start := time.Now()
	now := s.now()
	chat := schema.NewChat(ids.New(), title, now)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, apperr.New("convstore.CreateChat", apperr.KindInternal, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO chats (id, title, active_branch, created_at, last_message_at) VALUES ($1, $2, $3, $4, $5)`,
		chat.ID, chat.Title, chat.ActiveBranch, chat.CreatedAt, chat.LastMessageAt,
	); err != nil {
		return nil, apperr.New("convstore.CreateChat", apperr.KindInternal, err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO chat_branches (chat_id, name, created_at, from_message_id) VALUES ($1, $2, $3, NULL)`,
		chat.ID, schema.MainBranch, now,
	); err != nil {
		return nil, apperr.New("convstore.CreateChat", apperr.KindInternal, err)
	}

	if initialMessage != nil {
		msg := &schema.Message{
			ID:        ids.New(),
			ChatID:    chat.ID,
			Branch:    schema.MainBranch,
			Role:      schema.RoleUser,
			Kind:      schema.MessageText,
			Content:   *initialMessage,
			CreatedAt: now,
		}
		if err := insertMessage(ctx, tx, msg); err != nil {
			return nil, apperr.New("convstore.CreateChat", apperr.KindInternal, err)
		}
		chat.MessageCount = 1
		chat.LastMessageAt = now

		if title == "" && s.llm != nil {
			generated, err := s.llm.GenerateTitle(ctx, *initialMessage)
			if err == nil && generated != "" {
				chat.Title = generated
				if _, err := tx.ExecContext(ctx, `UPDATE chats SET title = $1 WHERE id = $2`, chat.Title, chat.ID); err != nil {
					return nil, apperr.New("convstore.CreateChat", apperr.KindInternal, err)
				}
			}
		}
		if _, err := tx.ExecContext(ctx, `UPDATE chats SET message_count = 1, last_message_at = $1 WHERE id = $2`, now, chat.ID); err != nil {
			return nil, apperr.New("convstore.CreateChat", apperr.KindInternal, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, apperr.New("convstore.CreateChat", apperr.KindInternal, err)
	}
	s.record(ctx, "CreateChat", start, nil)
	return chat, nil
}

// AddMessage inserts a message, defaulting its parent to the last
// non-deleted message of the active branch when parentID is nil,
// incrementing the chat's message count and last_message_at, and
// invalidating the branch-view hot cache for this chat, matching
// spec.md §4.H.
func (s *Store) AddMessage(ctx context.Context, chatID, content string, role schema.Role, parentID *string, kind schema.MessageKind, sources []schema.Source) (*schema.Message, error) {
	start := time.Now()
	if kind == "" {
		kind = schema.MessageText
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, apperr.New("convstore.AddMessage", apperr.KindInternal, err)
	}
	defer tx.Rollback()

	var activeBranch string
	if err := tx.QueryRowContext(ctx, `SELECT active_branch FROM chats WHERE id = $1 AND deleted = false`, chatID).Scan(&activeBranch); err != nil {
		if err == sql.ErrNoRows {
			return nil, apperr.New("convstore.AddMessage", apperr.KindChatNotFound, err)
		}
		return nil, apperr.New("convstore.AddMessage", apperr.KindInternal, err)
	}

	if parentID == nil {
		var last string
		err := tx.QueryRowContext(ctx,
			`SELECT id FROM messages WHERE chat_id = $1 AND branch = $2 AND deleted = false ORDER BY created_at DESC LIMIT 1`,
			chatID, activeBranch,
		).Scan(&last)
		if err == nil {
			parentID = &last
		} else if err == sql.ErrNoRows {
			// The branch has no messages of its own yet: its first message
			// forks from from_message_id, matching spec.md's "the parent
			// pointer of the first such message is the from_message_id".
			var fromMessageID sql.NullString
			if err := tx.QueryRowContext(ctx,
				`SELECT from_message_id FROM chat_branches WHERE chat_id = $1 AND name = $2`,
				chatID, activeBranch,
			).Scan(&fromMessageID); err != nil && err != sql.ErrNoRows {
				return nil, apperr.New("convstore.AddMessage", apperr.KindInternal, err)
			}
			if fromMessageID.Valid {
				parentID = &fromMessageID.String
			}
		} else {
			return nil, apperr.New("convstore.AddMessage", apperr.KindInternal, err)
		}
	}

	now := s.now()
	msg := &schema.Message{
		ID:        ids.New(),
		ChatID:    chatID,
		ParentID:  parentID,
		Branch:    activeBranch,
		Role:      role,
		Kind:      kind,
		Content:   content,
		Sources:   sources,
		CreatedAt: now,
	}
	if err := insertMessage(ctx, tx, msg); err != nil {
		return nil, apperr.New("convstore.AddMessage", apperr.KindInternal, err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE chats SET message_count = message_count + 1, last_message_at = $1 WHERE id = $2`, now, chatID,
	); err != nil {
		return nil, apperr.New("convstore.AddMessage", apperr.KindInternal, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, apperr.New("convstore.AddMessage", apperr.KindInternal, err)
	}
	s.cache.invalidateChat(chatID)
	s.record(ctx, "AddMessage", start, nil)
	return msg, nil
}

func insertMessage(ctx context.Context, tx *sql.Tx, msg *schema.Message) error {
	toolParamsJSON, err := json.Marshal(msg.ToolParams)
	if err != nil {
		return fmt.Errorf("convstore: marshal tool_params: %w", err)
	}
	sourcesJSON, err := json.Marshal(msg.Sources)
	if err != nil {
		return fmt.Errorf("convstore: marshal sources: %w", err)
	}
	metadataJSON, err := json.Marshal(msg.Metadata)
	if err != nil {
		return fmt.Errorf("convstore: marshal metadata: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO messages
			(id, chat_id, parent_id, branch, role, kind, content, token_count,
			 tool_name, tool_params, tool_call_id, sources, metadata, created_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`,
		msg.ID, msg.ChatID, msg.ParentID, msg.Branch, string(msg.Role), string(msg.Kind),
		msg.Content, msg.TokenCount, msg.ToolName, toolParamsJSON, msg.ToolCallID,
		sourcesJSON, metadataJSON, msg.CreatedAt,
	)
	return err
}

// GetHistory returns a chat's message history, matching spec.md §4.H: if
// uptoMessageID is given, it walks parent links back to the root and
// returns the chronological branch view for that message (cached); else
// it returns all non-deleted messages of the given (or active) branch,
// ordered by creation time, trimmed to the last max if max > 0.
func (s *Store) GetHistory(ctx context.Context, chatID string, branch *string, uptoMessageID *string, max int) ([]schema.Message, error) {
	start := time.Now()

	cacheKey := historyCacheKey(chatID, branch, uptoMessageID, max)
	if cached, ok := s.cache.get(cacheKey); ok {
		s.record(ctx, "GetHistory", start, nil)
		return cached, nil
	}

	var msgs []schema.Message
	var err error
	if uptoMessageID != nil {
		msgs, err = s.walkToRoot(ctx, chatID, *uptoMessageID)
	} else {
		b := schema.MainBranch
		if branch != nil {
			b = *branch
		} else {
			if err := s.db.QueryRowContext(ctx, `SELECT active_branch FROM chats WHERE id = $1`, chatID).Scan(&b); err != nil {
				if err == sql.ErrNoRows {
					return nil, apperr.New("convstore.GetHistory", apperr.KindChatNotFound, err)
				}
				return nil, apperr.New("convstore.GetHistory", apperr.KindInternal, err)
			}
		}
		msgs, err = s.branchMessages(ctx, chatID, b)
	}
	if err != nil {
		s.record(ctx, "GetHistory", start, err)
		return nil, err
	}

	if max > 0 && len(msgs) > max {
		msgs = msgs[len(msgs)-max:]
	}

	s.cache.set(chatID, cacheKey, msgs)
	s.record(ctx, "GetHistory", start, nil)
	return msgs, nil
}

func (s *Store) branchMessages(ctx context.Context, chatID, branch string) ([]schema.Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, chat_id, parent_id, branch, role, kind, content, token_count,
			tool_name, tool_params, tool_call_id, sources, metadata, created_at
		 FROM messages
		 WHERE chat_id = $1 AND branch = $2 AND deleted = false
		 ORDER BY created_at ASC`,
		chatID, branch,
	)
	if err != nil {
		return nil, apperr.New("convstore.GetHistory", apperr.KindInternal, err)
	}
	defer rows.Close()
	return scanMessages(rows)
}

// walkToRoot follows ParentID links from uptoMessageID back to the root
// and returns the path in chronological (root-first) order, matching
// spec.md's "defines the branch view for that message".
func (s *Store) walkToRoot(ctx context.Context, chatID, uptoMessageID string) ([]schema.Message, error) {
	var chain []schema.Message
	current := &uptoMessageID
	for current != nil {
		row := s.db.QueryRowContext(ctx,
			`SELECT id, chat_id, parent_id, branch, role, kind, content, token_count,
				tool_name, tool_params, tool_call_id, sources, metadata, created_at
			 FROM messages WHERE id = $1 AND chat_id = $2 AND deleted = false`,
			*current, chatID,
		)
		msg, err := scanMessage(row)
		if err != nil {
			if err == sql.ErrNoRows {
				return nil, apperr.New("convstore.GetHistory", apperr.KindMessageNotFound, err)
			}
			return nil, apperr.New("convstore.GetHistory", apperr.KindInternal, err)
		}
		chain = append(chain, *msg)
		current = msg.ParentID
	}
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain, nil
}

// CreateBranch inserts a branch row and switches the chat's active branch
// to it, matching spec.md §4.H.
func (s *Store) CreateBranch(ctx context.Context, chatID, name string, fromMessageID *string) error {
	start := time.Now()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return apperr.New("convstore.CreateBranch", apperr.KindInternal, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO chat_branches (chat_id, name, created_at, from_message_id) VALUES ($1, $2, $3, $4)`,
		chatID, name, s.now(), fromMessageID,
	); err != nil {
		return apperr.New("convstore.CreateBranch", apperr.KindInternal, err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE chats SET active_branch = $1 WHERE id = $2`, name, chatID); err != nil {
		return apperr.New("convstore.CreateBranch", apperr.KindInternal, err)
	}
	if err := tx.Commit(); err != nil {
		return apperr.New("convstore.CreateBranch", apperr.KindInternal, err)
	}
	s.cache.invalidateChat(chatID)
	s.record(ctx, "CreateBranch", start, nil)
	return nil
}

// SwitchBranch sets the chat's active branch, failing with InvalidBranch
// if name is not a row in the chat's branch table.
func (s *Store) SwitchBranch(ctx context.Context, chatID, name string) error {
	start := time.Now()
	var exists bool
	if err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM chat_branches WHERE chat_id = $1 AND name = $2)`, chatID, name,
	).Scan(&exists); err != nil {
		return apperr.New("convstore.SwitchBranch", apperr.KindInternal, err)
	}
	if !exists {
		return apperr.NewWithMessage("convstore.SwitchBranch", apperr.KindInvalidBranch, fmt.Sprintf("branch %q does not exist", name), nil)
	}
	if _, err := s.db.ExecContext(ctx, `UPDATE chats SET active_branch = $1 WHERE id = $2`, name, chatID); err != nil {
		return apperr.New("convstore.SwitchBranch", apperr.KindInternal, err)
	}
	s.cache.invalidateChat(chatID)
	s.record(ctx, "SwitchBranch", start, nil)
	return nil
}

// DeleteChat soft-deletes a chat; messages remain in storage but are
// conceptually cascaded away via the non-deletion filter every read path
// applies, matching spec.md §4.H.
func (s *Store) DeleteChat(ctx context.Context, chatID string) error {
	start := time.Now()
	now := s.now()
	res, err := s.db.ExecContext(ctx, `UPDATE chats SET deleted = true, deleted_at = $1 WHERE id = $2 AND deleted = false`, now, chatID)
	if err != nil {
		return apperr.New("convstore.DeleteChat", apperr.KindInternal, err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return apperr.NewWithMessage("convstore.DeleteChat", apperr.KindChatNotFound, chatID, nil)
	}
	s.cache.invalidateChat(chatID)
	s.record(ctx, "DeleteChat", start, nil)
	return nil
}

type messageRow interface {
	Scan(dest ...any) error
}

func scanMessage(row messageRow) (*schema.Message, error) {
	var msg schema.Message
	var roleStr, kindStr string
	var toolParamsJSON, sourcesJSON, metadataJSON []byte
	if err := row.Scan(
		&msg.ID, &msg.ChatID, &msg.ParentID, &msg.Branch, &roleStr, &kindStr, &msg.Content, &msg.TokenCount,
		&msg.ToolName, &toolParamsJSON, &msg.ToolCallID, &sourcesJSON, &metadataJSON, &msg.CreatedAt,
	); err != nil {
		return nil, err
	}
	msg.Role = schema.Role(roleStr)
	msg.Kind = schema.MessageKind(kindStr)
	if len(toolParamsJSON) > 0 {
		json.Unmarshal(toolParamsJSON, &msg.ToolParams)
	}
	if len(sourcesJSON) > 0 {
		json.Unmarshal(sourcesJSON, &msg.Sources)
	}
	if len(metadataJSON) > 0 {
		json.Unmarshal(metadataJSON, &msg.Metadata)
	}
	return &msg, nil
}

func scanMessages(rows *sql.Rows) ([]schema.Message, error) {
	var out []schema.Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, apperr.New("convstore.scanMessages", apperr.KindInternal, err)
		}
		out = append(out, *msg)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.New("convstore.scanMessages", apperr.KindInternal, err)
	}
	return out, nil
}

func historyCacheKey(chatID string, branch, uptoMessageID *string, max int) string {
	b, u := "", ""
	if branch != nil {
		b = *branch
	}
	if uptoMessageID != nil {
		u = *uptoMessageID
	}
	return fmt.Sprintf("%s|%s|%s|%d", chatID, b, u, max)
}

// hotCache is a branch-view cache keyed by an opaque history key, with
// per-chat invalidation. Grounded on cache/providers/inmemory's
// map-plus-doubly-linked-list LRU, simplified to TTL-less entries bounded
// by maxSize (least recently used evicted first) since this cache exists purely to absorb repeated GetHistory
// calls within one AddMessage/SwitchBranch/CreateBranch cycle — it is
// invalidated wholesale for a chat on any write, never by expiry.
type hotCache struct {
	mu      sync.Mutex
	entries map[string]*list.Element
	order   *list.List
	maxSize int
	byChat  map[string]map[string]struct{}
}

type hotCacheEntry struct {
	key    string
	chatID string
	value  []schema.Message
}

func newHotCache(maxSize int) *hotCache {
	return &hotCache{
		entries: make(map[string]*list.Element),
		order:    list.New(),
		maxSize:  maxSize,
		byChat:   make(map[string]map[string]struct{}),
	}
}

func (c *hotCache) get(key string) ([]schema.Message, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	elem, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	c.order.MoveToFront(elem)
	return elem.Value.(*hotCacheEntry).value, true
}

func (c *hotCache) set(chatID, key string, value []schema.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.entries[key]; ok {
		elem.Value.(*hotCacheEntry).value = value
		c.order.MoveToFront(elem)
		return
	}

	e := &hotCacheEntry{key: key, chatID: chatID, value: value}
	elem := c.order.PushFront(e)
	c.entries[key] = elem
	if c.byChat[chatID] == nil {
		c.byChat[chatID] = make(map[string]struct{})
	}
	c.byChat[chatID][key] = struct{}{}

	if c.maxSize > 0 && c.order.Len() > c.maxSize {
		back := c.order.Back()
		if back != nil {
			be := back.Value.(*hotCacheEntry)
			delete(c.entries, be.key)
			delete(c.byChat[be.chatID], be.key)
			c.order.Remove(back)
		}
	}
}

func (c *hotCache) invalidateChat(chatID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key := range c.byChat[chatID] {
		if elem, ok := c.entries[key]; ok {
			c.order.Remove(elem)
			delete(c.entries, key)
		}
	}
	delete(c.byChat, chatID)
}

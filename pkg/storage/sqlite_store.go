package storage

import (
	"crypto/rand"
	"database/sql"
	"errors"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"time"

	"github.com/small-frappuccino/quickvids/pkg/log"
	_ "modernc.org/sqlite"
)

var (
	ErrNotInitialized  = errors.New("store not initialized")
	ErrAlreadyFavorite = errors.New("already a favorite")
	ErrNotFavorite     = errors.New("not a favorite")
	ErrAlreadyLinked   = errors.New("tiktok account linked to another user")
	ErrNotLinked       = errors.New("no linked tiktok account")
)

// Store wraps an embedded SQLite database holding guild configs, accounts,
// favorites, short links, embed logs and magic-mention links.
// It uses modernc.org/sqlite for CGO-less builds.
type Store struct {
	dbPath string
	db     *sql.DB
	now    func() time.Time
}

// NewStore creates a new Store pointing to dbPath. Call Init() before using it.
func NewStore(dbPath string) *Store {
	return &Store{dbPath: dbPath, now: time.Now}
}

// Init opens the SQLite database, configures pragmas, and ensures the schema exists.
func (s *Store) Init() error {
	if s.db != nil {
		return nil
	}
	if s.dbPath == "" {
		return fmt.Errorf("db path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(s.dbPath), 0o755); err != nil {
		return fmt.Errorf("failed to create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", s.dbPath)
	if err != nil {
		return fmt.Errorf("open sqlite: %w", err)
	}
	// Pragmas below are per connection; a single connection keeps them in effect.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		`PRAGMA journal_mode=WAL;`,
		`PRAGMA foreign_keys=ON;`,
		`PRAGMA busy_timeout=5000;`,
		`PRAGMA synchronous=NORMAL;`,
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return fmt.Errorf("exec %s: %w", p, err)
		}
	}

	if err := ensureSchema(db); err != nil {
		_ = db.Close()
		return err
	}

	s.db = db
	log.DatabaseLogger().Info("Store initialized", "path", s.dbPath)
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Ping checks the database connection and returns its round trip.
func (s *Store) Ping() (time.Duration, error) {
	if s.db == nil {
		return 0, ErrNotInitialized
	}
	start := time.Now()
	if err := s.db.Ping(); err != nil {
		return 0, err
	}
	return time.Since(start), nil
}

func ensureSchema(db *sql.DB) error {
	const createGuildConfigs = `
CREATE TABLE IF NOT EXISTS guild_configs (
  guild_id              TEXT PRIMARY KEY,
  show_buttons          BOOLEAN NOT NULL DEFAULT 1,
  markdown_links        BOOLEAN NOT NULL DEFAULT 0,
  mention_magic_channel TEXT NOT NULL DEFAULT '',
  created_at            TIMESTAMP NOT NULL
);`

	const createAccounts = `
CREATE TABLE IF NOT EXISTS accounts (
  user_id        TEXT PRIMARY KEY,
  has_premium    BOOLEAN NOT NULL DEFAULT 0,
  log_usage_data BOOLEAN NOT NULL DEFAULT 1,
  created_at     TIMESTAMP NOT NULL
);`

	const createFavorites = `
CREATE TABLE IF NOT EXISTS favorites (
  user_id    TEXT NOT NULL,
  video_id   TEXT NOT NULL,
  created_at TIMESTAMP NOT NULL,
  PRIMARY KEY (user_id, video_id)
);`

	const createShortLinks = `
CREATE TABLE IF NOT EXISTS short_links (
  video_id   TEXT PRIMARY KEY,
  slug       TEXT NOT NULL UNIQUE,
  file_id    TEXT NOT NULL DEFAULT '',
  video_uri  TEXT NOT NULL DEFAULT '',
  created_at TIMESTAMP NOT NULL
);`

	const createEmbedLogs = `
CREATE TABLE IF NOT EXISTS embed_logs (
  id         INTEGER PRIMARY KEY AUTOINCREMENT,
  method     INTEGER NOT NULL,
  guild_id   TEXT NOT NULL,
  channel_id TEXT NOT NULL,
  video_id   TEXT NOT NULL,
  user_id    TEXT,
  created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_embed_logs_created ON embed_logs(created_at);
CREATE INDEX IF NOT EXISTS idx_embed_logs_user ON embed_logs(user_id);`

	const createMagicMentions = `
CREATE TABLE IF NOT EXISTS magic_mentions (
  discord_id TEXT PRIMARY KEY,
  tt_sec_uid TEXT NOT NULL UNIQUE,
  tt_uid     TEXT NOT NULL,
  linked_at  TIMESTAMP NOT NULL
);`

	const createMagicMentionGuilds = `
CREATE TABLE IF NOT EXISTS magic_mention_guilds (
  discord_id TEXT NOT NULL REFERENCES magic_mentions(discord_id) ON DELETE CASCADE,
  guild_id   TEXT NOT NULL,
  PRIMARY KEY (discord_id, guild_id)
);`

	stmts := []string{
		createGuildConfigs,
		createAccounts,
		createFavorites,
		createShortLinks,
		createEmbedLogs,
		createMagicMentions,
		createMagicMentionGuilds,
	}
	for _, sqlText := range stmts {
		if _, err := db.Exec(sqlText); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
	}
	return nil
}

// GuildConfig holds per-guild conversion settings.
type GuildConfig struct {
	GuildID             string `json:"guild_id"`
	ShowButtons         bool   `json:"show_buttons"`
	MarkdownLinks       bool   `json:"markdown_links"`
	MentionMagicChannel string `json:"mention_magic_channel"`
}

// DefaultGuildConfig is used for DMs, where no row is stored.
func DefaultGuildConfig(guildID string) GuildConfig {
	return GuildConfig{GuildID: guildID, ShowButtons: true}
}

// GuildConfig returns the configuration for guildID, creating the default row when missing.
func (s *Store) GuildConfig(guildID string) (GuildConfig, error) {
	if s.db == nil {
		return GuildConfig{}, ErrNotInitialized
	}
	def := DefaultGuildConfig(guildID)
	if _, err := s.db.Exec(
		`INSERT INTO guild_configs (guild_id, show_buttons, markdown_links, mention_magic_channel, created_at)
         VALUES (?, ?, ?, ?, ?) ON CONFLICT(guild_id) DO NOTHING`,
		guildID, def.ShowButtons, def.MarkdownLinks, def.MentionMagicChannel, s.now().UTC(),
	); err != nil {
		return GuildConfig{}, fmt.Errorf("ensure guild config: %w", err)
	}

	cfg := GuildConfig{GuildID: guildID}
	err := s.db.QueryRow(
		`SELECT show_buttons, markdown_links, mention_magic_channel FROM guild_configs WHERE guild_id=?`,
		guildID,
	).Scan(&cfg.ShowButtons, &cfg.MarkdownLinks, &cfg.MentionMagicChannel)
	if err != nil {
		return GuildConfig{}, fmt.Errorf("read guild config: %w", err)
	}
	return cfg, nil
}

// UpdateGuildConfig loads the config for guildID, applies fn and writes it back.
func (s *Store) UpdateGuildConfig(guildID string, fn func(*GuildConfig) error) (GuildConfig, error) {
	cfg, err := s.GuildConfig(guildID)
	if err != nil {
		return GuildConfig{}, err
	}
	if err := fn(&cfg); err != nil {
		return GuildConfig{}, err
	}
	cfg.GuildID = guildID
	if _, err := s.db.Exec(
		`UPDATE guild_configs SET show_buttons=?, markdown_links=?, mention_magic_channel=? WHERE guild_id=?`,
		cfg.ShowButtons, cfg.MarkdownLinks, cfg.MentionMagicChannel, guildID,
	); err != nil {
		return GuildConfig{}, fmt.Errorf("update guild config: %w", err)
	}
	return cfg, nil
}

// Account is the per-user record.
type Account struct {
	UserID       string `json:"user_id"`
	HasPremium   bool   `json:"has_premium"`
	LogUsageData bool   `json:"log_usage_data"`
}

// Account returns the account for userID, creating it when missing.
func (s *Store) Account(userID string) (Account, error) {
	if s.db == nil {
		return Account{}, ErrNotInitialized
	}
	if _, err := s.db.Exec(
		`INSERT INTO accounts (user_id, created_at) VALUES (?, ?) ON CONFLICT(user_id) DO NOTHING`,
		userID, s.now().UTC(),
	); err != nil {
		return Account{}, fmt.Errorf("ensure account: %w", err)
	}
	acc := Account{UserID: userID}
	if err := s.db.QueryRow(
		`SELECT has_premium, log_usage_data FROM accounts WHERE user_id=?`, userID,
	).Scan(&acc.HasPremium, &acc.LogUsageData); err != nil {
		return Account{}, fmt.Errorf("read account: %w", err)
	}
	return acc, nil
}

// SetPremium sets the stored premium flag for userID.
func (s *Store) SetPremium(userID string, premium bool) error {
	if _, err := s.Account(userID); err != nil {
		return err
	}
	_, err := s.db.Exec(`UPDATE accounts SET has_premium=? WHERE user_id=?`, premium, userID)
	return err
}

// SetLogUsageData records the usage-data collection preference.
func (s *Store) SetLogUsageData(userID string, collect bool) error {
	if _, err := s.Account(userID); err != nil {
		return err
	}
	_, err := s.db.Exec(`UPDATE accounts SET log_usage_data=? WHERE user_id=?`, collect, userID)
	return err
}

// DeleteUsageData opts the user out and anonymises every embed log they own.
// It returns the number of anonymised rows.
func (s *Store) DeleteUsageData(userID string) (int64, error) {
	if _, err := s.Account(userID); err != nil {
		return 0, err
	}
	tx, err := s.db.Begin()
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`UPDATE accounts SET log_usage_data=0 WHERE user_id=?`, userID); err != nil {
		return 0, fmt.Errorf("opt out: %w", err)
	}
	res, err := tx.Exec(`UPDATE embed_logs SET user_id=NULL, channel_id='unknown' WHERE user_id=?`, userID)
	if err != nil {
		return 0, fmt.Errorf("anonymise logs: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	log.DatabaseLogger().Info("Usage data deleted", "user_id", userID, "rows", n)
	return n, nil
}

// AddFavorite stores videoID in the user's library.
func (s *Store) AddFavorite(userID, videoID string) error {
	if _, err := s.Account(userID); err != nil {
		return err
	}
	res, err := s.db.Exec(
		`INSERT INTO favorites (user_id, video_id, created_at) VALUES (?, ?, ?) ON CONFLICT(user_id, video_id) DO NOTHING`,
		userID, videoID, s.now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("add favorite: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrAlreadyFavorite
	}
	return nil
}

// RemoveFavorite removes videoID from the user's library.
func (s *Store) RemoveFavorite(userID, videoID string) error {
	if s.db == nil {
		return ErrNotInitialized
	}
	res, err := s.db.Exec(`DELETE FROM favorites WHERE user_id=? AND video_id=?`, userID, videoID)
	if err != nil {
		return fmt.Errorf("remove favorite: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFavorite
	}
	return nil
}

// IsFavorite reports whether videoID is in the user's library.
func (s *Store) IsFavorite(userID, videoID string) (bool, error) {
	if s.db == nil {
		return false, ErrNotInitialized
	}
	var n int
	if err := s.db.QueryRow(
		`SELECT COUNT(1) FROM favorites WHERE user_id=? AND video_id=?`, userID, videoID,
	).Scan(&n); err != nil {
		return false, err
	}
	return n > 0, nil
}

// ShortLink maps a video to a slug on the web site.
type ShortLink struct {
	VideoID  string
	Slug     string
	FileID   string
	VideoURI string
}

// ShortLinkByVideo returns the short link for videoID, if any.
func (s *Store) ShortLinkByVideo(videoID string) (ShortLink, bool, error) {
	return s.shortLink(`SELECT video_id, slug, file_id, video_uri FROM short_links WHERE video_id=?`, videoID)
}

// ShortLinkBySlug resolves a slug.
func (s *Store) ShortLinkBySlug(slug string) (ShortLink, bool, error) {
	return s.shortLink(`SELECT video_id, slug, file_id, video_uri FROM short_links WHERE slug=?`, slug)
}

func (s *Store) shortLink(query, arg string) (ShortLink, bool, error) {
	if s.db == nil {
		return ShortLink{}, false, ErrNotInitialized
	}
	var l ShortLink
	err := s.db.QueryRow(query, arg).Scan(&l.VideoID, &l.Slug, &l.FileID, &l.VideoURI)
	if errors.Is(err, sql.ErrNoRows) {
		return ShortLink{}, false, nil
	}
	if err != nil {
		return ShortLink{}, false, err
	}
	return l, true, nil
}

const (
	slugAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	slugLength   = 8
	slugAttempts = 5
)

// CreateShortLink returns the existing link for videoID or creates one with
// a fresh 8-character slug.
func (s *Store) CreateShortLink(videoID, videoURI, fileID string) (ShortLink, error) {
	if existing, ok, err := s.ShortLinkByVideo(videoID); err != nil || ok {
		return existing, err
	}
	for attempt := 0; attempt < slugAttempts; attempt++ {
		slug, err := newSlug()
		if err != nil {
			return ShortLink{}, err
		}
		_, err = s.db.Exec(
			`INSERT INTO short_links (video_id, slug, file_id, video_uri, created_at) VALUES (?, ?, ?, ?, ?)`,
			videoID, slug, fileID, videoURI, s.now().UTC(),
		)
		if err == nil {
			return ShortLink{VideoID: videoID, Slug: slug, FileID: fileID, VideoURI: videoURI}, nil
		}
		// Either the slug collided or another request created the video's link.
		if existing, ok, lookupErr := s.ShortLinkByVideo(videoID); lookupErr == nil && ok {
			return existing, nil
		}
	}
	return ShortLink{}, fmt.Errorf("create short link for %s: no free slug after %d attempts", videoID, slugAttempts)
}

func newSlug() (string, error) {
	out := make([]byte, slugLength)
	size := big.NewInt(int64(len(slugAlphabet)))
	for i := range out {
		n, err := rand.Int(rand.Reader, size)
		if err != nil {
			return "", fmt.Errorf("generate slug: %w", err)
		}
		out[i] = slugAlphabet[n.Int64()]
	}
	return string(out), nil
}

// EmbedMethod records how a conversion was requested.
type EmbedMethod int

const (
	EmbedMethodUnknown EmbedMethod = iota
	EmbedMethodSlashCommand
	EmbedMethodAppContextMenu
)

func (m EmbedMethod) String() string {
	switch m {
	case EmbedMethodSlashCommand:
		return "slash_command"
	case EmbedMethodAppContextMenu:
		return "app_context_menu"
	default:
		return "unknown"
	}
}

// EmbedLog is one conversion event.
type EmbedLog struct {
	Method    EmbedMethod
	GuildID   string
	ChannelID string
	VideoID   string
	UserID    string
}

// InsertEmbedLog records a conversion. The user ID is dropped for users who
// opted out of usage data. It reports whether the user ID was kept.
func (s *Store) InsertEmbedLog(e EmbedLog) (bool, error) {
	if s.db == nil {
		return false, ErrNotInitialized
	}
	var userID any
	if e.UserID != "" {
		acc, err := s.Account(e.UserID)
		if err != nil {
			return false, err
		}
		if acc.LogUsageData {
			userID = e.UserID
		}
	}
	guildID := e.GuildID
	if guildID == "" {
		guildID = "0"
	}
	if _, err := s.db.Exec(
		`INSERT INTO embed_logs (method, guild_id, channel_id, video_id, user_id, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		int(e.Method), guildID, e.ChannelID, e.VideoID, userID, s.now().Unix(),
	); err != nil {
		return false, fmt.Errorf("insert embed log: %w", err)
	}
	return userID != nil, nil
}

// Stats summarises usage for the info command.
type Stats struct {
	TotalEmbedded   int64
	EmbeddedPastDay int64
	EmbeddedToday   int64
	TotalUsers      int64
	ServerCount     int64
}

// Stats computes usage totals relative to the store clock.
func (s *Store) Stats() (Stats, error) {
	if s.db == nil {
		return Stats{}, ErrNotInitialized
	}
	now := s.now().UTC()
	dayAgo := now.Add(-24 * time.Hour)
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	var st Stats
	err := s.db.QueryRow(`
SELECT
  (SELECT COUNT(1) FROM embed_logs),
  (SELECT COUNT(1) FROM embed_logs WHERE created_at >= ?),
  (SELECT COUNT(1) FROM embed_logs WHERE created_at >= ?),
  (SELECT COUNT(1) FROM accounts),
  (SELECT COUNT(1) FROM guild_configs)`,
		dayAgo.Unix(), midnight.Unix(),
	).Scan(&st.TotalEmbedded, &st.EmbeddedPastDay, &st.EmbeddedToday, &st.TotalUsers, &st.ServerCount)
	if err != nil {
		return Stats{}, fmt.Errorf("read stats: %w", err)
	}
	return st, nil
}

// MagicMention links a Discord user to a TikTok account.
type MagicMention struct {
	DiscordID string
	SecUID    string
	UID       string
	Guilds    []string
}

// MagicMention returns the link for discordID, if any.
func (s *Store) MagicMention(discordID string) (MagicMention, bool, error) {
	return s.magicMention(`SELECT discord_id, tt_sec_uid, tt_uid FROM magic_mentions WHERE discord_id=?`, discordID)
}

// MagicMentionBySecUID returns the link owning the TikTok account, if any.
func (s *Store) MagicMentionBySecUID(secUID string) (MagicMention, bool, error) {
	return s.magicMention(`SELECT discord_id, tt_sec_uid, tt_uid FROM magic_mentions WHERE tt_sec_uid=?`, secUID)
}

func (s *Store) magicMention(query, arg string) (MagicMention, bool, error) {
	if s.db == nil {
		return MagicMention{}, false, ErrNotInitialized
	}
	var m MagicMention
	err := s.db.QueryRow(query, arg).Scan(&m.DiscordID, &m.SecUID, &m.UID)
	if errors.Is(err, sql.ErrNoRows) {
		return MagicMention{}, false, nil
	}
	if err != nil {
		return MagicMention{}, false, err
	}
	rows, err := s.db.Query(`SELECT guild_id FROM magic_mention_guilds WHERE discord_id=? ORDER BY rowid`, m.DiscordID)
	if err != nil {
		return MagicMention{}, false, err
	}
	defer rows.Close()
	for rows.Next() {
		var gid string
		if err := rows.Scan(&gid); err != nil {
			return MagicMention{}, false, err
		}
		m.Guilds = append(m.Guilds, gid)
	}
	return m, true, rows.Err()
}

// LinkMagicMention links discordID to a TikTok account, replacing any
// previous account of the same user. A TikTok account owned by another user
// yields ErrAlreadyLinked.
func (s *Store) LinkMagicMention(discordID, secUID, uid string) error {
	if s.db == nil {
		return ErrNotInitialized
	}
	owner, ok, err := s.MagicMentionBySecUID(secUID)
	if err != nil {
		return err
	}
	if ok && owner.DiscordID != discordID {
		return ErrAlreadyLinked
	}
	_, err = s.db.Exec(
		`INSERT INTO magic_mentions (discord_id, tt_sec_uid, tt_uid, linked_at) VALUES (?, ?, ?, ?)
         ON CONFLICT(discord_id) DO UPDATE SET tt_sec_uid=excluded.tt_sec_uid, tt_uid=excluded.tt_uid, linked_at=excluded.linked_at`,
		discordID, secUID, uid, s.now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("link magic mention: %w", err)
	}
	return nil
}

// UnlinkMagicMention removes the link and its guild list.
func (s *Store) UnlinkMagicMention(discordID string) error {
	if s.db == nil {
		return ErrNotInitialized
	}
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	if _, err := tx.Exec(`DELETE FROM magic_mention_guilds WHERE discord_id=?`, discordID); err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM magic_mentions WHERE discord_id=?`, discordID); err != nil {
		return err
	}
	return tx.Commit()
}

// EnableMagicMention adds guildID to the user's notify list. It reports
// false when the guild was already enabled.
func (s *Store) EnableMagicMention(discordID, guildID string) (bool, error) {
	if _, ok, err := s.MagicMention(discordID); err != nil {
		return false, err
	} else if !ok {
		return false, ErrNotLinked
	}
	res, err := s.db.Exec(
		`INSERT INTO magic_mention_guilds (discord_id, guild_id) VALUES (?, ?) ON CONFLICT DO NOTHING`,
		discordID, guildID,
	)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// DisableMagicMention removes guildID from the user's notify list. It
// reports false when the guild was not enabled.
func (s *Store) DisableMagicMention(discordID, guildID string) (bool, error) {
	if _, ok, err := s.MagicMention(discordID); err != nil {
		return false, err
	} else if !ok {
		return false, ErrNotLinked
	}
	res, err := s.db.Exec(`DELETE FROM magic_mention_guilds WHERE discord_id=? AND guild_id=?`, discordID, guildID)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

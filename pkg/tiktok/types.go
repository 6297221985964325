package tiktok

import (
	"bytes"
	"encoding/json"
	"strings"
)

// FlexString accepts both JSON strings and numbers. The API is not
// consistent about how it encodes IDs.
type FlexString string

func (f *FlexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = FlexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = FlexString(n.String())
	return nil
}

func (f FlexString) String() string { return string(f) }

// URLList is the media URL wrapper used throughout the API.
type URLList struct {
	URLList []string `json:"url_list"`
}

// First returns the first URL or "".
func (u URLList) First() string {
	if len(u.URLList) == 0 {
		return ""
	}
	return u.URLList[0]
}

// Containing returns the first URL that contains substr.
func (u URLList) Containing(substr string) string {
	for _, v := range u.URLList {
		if strings.Contains(v, substr) {
			return v
		}
	}
	return ""
}

// TextExtra annotates a span of a post description. Type 1 is a hashtag.
// Offsets are UTF-16 code units.
type TextExtra struct {
	Start       int    `json:"start"`
	End         int    `json:"end"`
	Type        int    `json:"type"`
	HashtagName string `json:"hashtag_name"`
}

type Author struct {
	Nickname    string  `json:"nickname"`
	UniqueID    string  `json:"unique_id"`
	AvatarThumb URLList `json:"avatar_thumb"`
}

type Statistics struct {
	PlayCount     int64 `json:"play_count"`
	DiggCount     int64 `json:"digg_count"`
	CommentCount  int64 `json:"comment_count"`
	ShareCount    int64 `json:"share_count"`
	DownloadCount int64 `json:"download_count"`
}

type Video struct {
	Cover        URLList `json:"cover"`
	PlayAddrH264 URLList `json:"play_addr_h264"`
}

type PostMusic struct {
	MID FlexString `json:"mid"`
}

// Post is the aweme_detail object of a video or photo post.
type Post struct {
	AwemeID       FlexString      `json:"aweme_id"`
	Desc          string          `json:"desc"`
	CreateTime    int64           `json:"create_time"`
	Author        Author          `json:"author"`
	Statistics    Statistics      `json:"statistics"`
	Video         Video           `json:"video"`
	Music         PostMusic       `json:"music"`
	TextExtra     []TextExtra     `json:"text_extra"`
	ImagePostInfo json.RawMessage `json:"image_post_info,omitempty"`

	// ShortURL is set when short-link creation is enabled.
	ShortURL string `json:"-"`
}

// IsImagePost reports whether the post is a photo slideshow.
func (p *Post) IsImagePost() bool {
	return len(p.ImagePostInfo) > 0 && !bytes.Equal(p.ImagePostInfo, []byte("null"))
}

// Music is the music_info object.
type Music struct {
	Title      string     `json:"title"`
	Author     string     `json:"author"`
	OwnerID    FlexString `json:"owner_id"`
	UserCount  int64      `json:"user_count"`
	CoverThumb URLList    `json:"cover_thumb"`
	CoverLarge URLList    `json:"cover_large"`
	PlayURL    URLList    `json:"play_url"`
}

type ShareInfo struct {
	ShareURL string `json:"share_url"`
}

// User is a TikTok profile.
type User struct {
	UID           FlexString `json:"uid"`
	SecUID        string     `json:"sec_uid"`
	UniqueID      string     `json:"unique_id"`
	Nickname      string     `json:"nickname"`
	Signature     string     `json:"signature"`
	FollowerCount int64      `json:"follower_count"`
	AvatarLarger  URLList    `json:"avatar_larger"`
	ShareInfo     ShareInfo  `json:"share_info"`
}

type postResponse struct {
	StatusCode int   `json:"status_code"`
	Detail     *Post `json:"aweme_detail"`
}

type musicResponse struct {
	StatusCode int    `json:"status_code"`
	Music      *Music `json:"music_info"`
}

type userResponse struct {
	StatusCode int   `json:"status_code"`
	User       *User `json:"user"`
}

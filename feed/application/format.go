package application

import (
	"fmt"
	"html"
	"html/template"
	"net/url"
	"regexp"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/dfryer1193/cropfeed/feed/domain"
)

const (
	JustPosted       = "Just posted"
	PriceUnit        = "/kg"
	PricePlaceholder = "Price on request"
	SellerName       = "You"
	DeliveryNote     = "Delivery Available"

	// DefaultUploadURL is where the empty state sends sellers.
	DefaultUploadURL = "/post-upload"

	placeholderImageURL = "https://via.placeholder.com/400x240?text="
)

var (
	numericPriceRegex = regexp.MustCompile(`^(\d{1,3}(,\d{3})+|\d+)(\.\d+)?$`)
	unitSuffixRegex   = regexp.MustCompile(`(?i)\s*/\s*kg$`)
)

// PostCard is the display form of one post.
type PostCard struct {
	ID              int64         `json:"id"`
	SellerName      string        `json:"sellerName"`
	RelativeTime    string        `json:"relativeTime"`
	Title           string        `json:"title"`
	Category        string        `json:"category"`
	Location        string        `json:"location"`
	Tags            []string      `json:"tags"`
	ImageURL        string        `json:"imageUrl"`
	ImageAlt        string        `json:"imageAlt"`
	Summary         string        `json:"summary"`
	DescriptionHTML template.HTML `json:"descriptionHtml"`
	PriceValue      string        `json:"priceValue"`
	PriceText       string        `json:"priceText"`
	PriceQuoted     bool          `json:"priceQuoted"`
	Available       string        `json:"available"`
	Delivery        string        `json:"delivery"`
	Likes           int           `json:"likes"`
	Comments        int           `json:"comments"`
	ContactURL      string        `json:"contactUrl"`
}

// EmptyState is shown instead of the list when there are no posts.
type EmptyState struct {
	Icon     string `json:"icon"`
	Heading  string `json:"heading"`
	Text     string `json:"text"`
	CTALabel string `json:"ctaLabel"`
	CTAHref  string `json:"ctaHref"`
}

// FeedView is one rendering pass over the collection. Exactly one of
// EmptyState and Cards is populated.
type FeedView struct {
	Empty      bool        `json:"empty"`
	EmptyState *EmptyState `json:"emptyState,omitempty"`
	Cards      []PostCard  `json:"cards,omitempty"`
}

// Formatter converts posts into cards.
type Formatter struct {
	descriptions DescriptionRenderer
	uploadURL    string
}

func NewFormatter(descriptions DescriptionRenderer, uploadURL string) *Formatter {
	if uploadURL == "" {
		uploadURL = DefaultUploadURL
	}
	return &Formatter{
		descriptions: descriptions,
		uploadURL:    uploadURL,
	}
}

var defaultFormatter = NewFormatter(NewDescriptionRenderer(), DefaultUploadURL)

// FormatPost formats a post with the default formatter.
func FormatPost(post domain.Post, now time.Time) PostCard {
	return defaultFormatter.FormatPost(post, now)
}

// FormatPost is deterministic for a given post and instant. Missing or
// malformed fields produce empty or placeholder text.
func (f *Formatter) FormatPost(post domain.Post, now time.Time) PostCard {
	priceValue, priceText := FormatPrice(post.Price)
	quoted := priceText != PricePlaceholder

	card := PostCard{
		ID:           post.ID,
		SellerName:   SellerName,
		RelativeTime: RelativeTime(post.Timestamp, now),
		Title:        post.Title,
		Category:     post.Category,
		Location:     post.Location,
		Tags:         tags(post.Title, post.Category, post.Location),
		ImageURL:     imageURL(post),
		ImageAlt:     post.Title,
		Summary:      summarize(post.Description),
		PriceValue:   priceValue,
		PriceText:    priceText,
		PriceQuoted:  quoted,
		Available:    post.Available,
		Delivery:     DeliveryNote,
		ContactURL:   fmt.Sprintf("/posts/%d/contact", post.ID),
	}

	if f.descriptions != nil {
		rendered, err := f.descriptions.Render(post.Description)
		if err != nil {
			rendered = template.HTML(html.EscapeString(post.Description))
		}
		card.DescriptionHTML = rendered
	}

	return card
}

// EmptyFeed returns the view shown when there are no posts.
func (f *Formatter) EmptyFeed() FeedView {
	return FeedView{
		Empty: true,
		EmptyState: &EmptyState{
			Icon:     "🌾",
			Heading:  "No crops available yet",
			Text:     `Be the first to post your crops! Click on "Post Upload" in the sidebar to get started.`,
			CTALabel: "Upload Your First Crop",
			CTAHref:  f.uploadURL,
		},
	}
}

// RelativeTime buckets the age of a post into whole hours. There is no
// day or week granularity. A zero timestamp yields an empty string and a
// timestamp in the future counts as just posted.
func RelativeTime(timestamp, now time.Time) string {
	if timestamp.IsZero() {
		return ""
	}

	hours := int64(now.Sub(timestamp) / time.Hour)
	if hours <= 0 {
		return JustPosted
	}
	if hours == 1 {
		return "Posted 1 hour ago"
	}
	return fmt.Sprintf("Posted %d hours ago", hours)
}

// NormalizePrice strips one leading currency symbol and a trailing unit
// marker from a stored price.
func NormalizePrice(price string) string {
	price = strings.TrimSpace(price)
	if r, size := utf8.DecodeRuneInString(price); size > 0 && unicode.Is(unicode.Sc, r) {
		price = price[size:]
	}
	price = unitSuffixRegex.ReplaceAllString(price, "")
	return strings.TrimSpace(price)
}

// FormatPrice returns the bare numeric value and the display text. A number
// gets the default unit appended. Other prices that quote a figure, such as
// "2000/quintal", are shown as written with an empty value. Anything else
// yields the placeholder.
func FormatPrice(price string) (value, text string) {
	normalized := NormalizePrice(price)
	if numericPriceRegex.MatchString(normalized) {
		return normalized, normalized + PriceUnit
	}
	if strings.ContainsFunc(normalized, unicode.IsDigit) {
		return "", normalized
	}
	return "", PricePlaceholder
}

func tags(values ...string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func imageURL(post domain.Post) string {
	if strings.TrimSpace(post.Image) != "" {
		return post.Image
	}
	label := strings.TrimSpace(post.Category)
	if label == "" {
		label = "Product"
	}
	return placeholderImageURL + url.QueryEscape(label)
}

package rest

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/dfryer1193/cropfeed/api"
	"github.com/dfryer1193/cropfeed/feed/application"
	"github.com/dfryer1193/cropfeed/feed/domain"
	"github.com/dfryer1193/cropfeed/internal/middleware"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

const imageField = "images"

var imageExtensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

type feedPage struct {
	Heading string
	Feed    application.FeedView
	User    string
}

func (h *handler) GetFeedPage(c *gin.Context) {
	page := feedPage{Heading: "Fresh Crops", Feed: h.Feed.LoadAndRender(c.Request.Context())}
	if user, ok := middleware.CurrentUser(c); ok {
		page.User = user.Email
	}
	c.HTML(http.StatusOK, "feed.html", page)
}

func (h *handler) GetUploadPage(c *gin.Context) {
	c.HTML(http.StatusOK, "upload.html", gin.H{"Action": "/upload-product"})
}

func (h *handler) GetFeed(c *gin.Context) {
	c.JSON(http.StatusOK, h.Feed.LoadAndRender(c.Request.Context()))
}

// UploadProduct creates a post from a multipart form. The photo is optional.
func (h *handler) UploadProduct(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.MaxUploadBytes)
	if err := c.Request.ParseMultipartForm(h.MaxUploadBytes); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		var maxErr *http.MaxBytesError
		if !errors.As(err, &maxErr) {
			err = badRequest("invalid form: " + err.Error())
		}
		writeError(c, "Upload failed", err)
		return
	}

	available := c.PostForm("available")
	if available == "" {
		available = c.PostForm("quantity")
	}

	fields := domain.PostFields{
		Title:       c.PostForm("title"),
		Description: c.PostForm("description"),
		Available:   available,
		Price:       c.PostForm("price"),
		Category:    c.PostForm("category"),
		Location:    c.PostForm("location"),
	}
	if user, ok := middleware.CurrentUser(c); ok {
		fields.UserID = user.ID
	}

	// Reject bad fields before anything is written to disk.
	if err := fields.Validate(); err != nil {
		writeError(c, "", err)
		return
	}

	var stored *storedImage
	if fh, err := c.FormFile(imageField); err == nil && fh.Size > 0 {
		stored, err = h.saveImage(c, fh)
		if err != nil {
			writeError(c, "Upload failed", err)
			return
		}
		fields.Image = stored.URL
	}

	post, err := h.Feed.AddPost(c.Request.Context(), fields)
	if err != nil {
		h.discardImage(c, stored)
		writeError(c, "Upload failed", err)
		return
	}

	c.JSON(http.StatusOK, api.UploadResponse{
		StatusResponse: api.StatusResponse{
			Status:      api.StatusSuccess,
			Message:     "Product uploaded successfully",
			RedirectURL: "/feed",
		},
		Post: post,
	})
}

// storedImage is a photo written during the current upload. Fresh is false
// when an identical photo was already stored for an earlier post.
type storedImage struct {
	Name  string
	URL   string
	Fresh bool
}

// saveImage stores an uploaded photo under its content hash.
func (h *handler) saveImage(c *gin.Context, fh *multipart.FileHeader) (*storedImage, error) {
	if h.Images == nil {
		return nil, badRequest("image uploads are not enabled")
	}

	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open uploaded image: %w", err)
	}
	defer f.Close()

	content, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read uploaded image: %w", err)
	}

	ext, ok := imageExtensions[http.DetectContentType(content)]
	if !ok {
		return nil, badRequest(fmt.Sprintf("unsupported image type for %s", filepath.Base(fh.Filename)))
	}

	sum := sha256.Sum256(content)
	hash := hex.EncodeToString(sum[:])
	name := hash[:16] + ext

	_, err = h.Images.GetImage(c.Request.Context(), name)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}
	fresh := err != nil

	now := time.Now().UTC()
	img := &domain.Image{
		Path:      name,
		Hash:      hash,
		Content:   content,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := h.Images.SaveImage(c.Request.Context(), img); err != nil {
		return nil, err
	}

	log.Info().Str("path", name).Str("hash", hash).Int("bytes", len(content)).Bool("fresh", fresh).Msg("Image stored")
	return &storedImage{Name: name, URL: "/images/" + name, Fresh: fresh}, nil
}

// discardImage removes a photo whose post could not be saved. Photos shared
// with an earlier post are left alone.
func (h *handler) discardImage(c *gin.Context, img *storedImage) {
	if img == nil || !img.Fresh {
		return
	}
	if err := h.Images.DeleteImage(c.Request.Context(), img.Name); err != nil {
		log.Error().Err(err).Str("path", img.Name).Msg("Failed to remove image of rejected upload")
	}
}

func (h *handler) ContactSeller(c *gin.Context) {
	postID, err := strconv.ParseInt(c.Param("postId"), 10, 64)
	if err != nil {
		writeError(c, "", badRequest("invalid post id"))
		return
	}

	var requesterID string
	if user, ok := middleware.CurrentUser(c); ok {
		requesterID = user.ID
	}

	contact, found, err := h.Feed.ContactSeller(c.Request.Context(), postID, requesterID)
	if !found {
		c.JSON(http.StatusNotFound, api.Error("Post not found"))
		return
	}

	msg := contactMessage(contact)
	if err != nil {
		// The details are still valid; only the seller notification failed.
		c.Error(err)
		msg += "\nThe seller could not be notified right now."
	}

	c.JSON(http.StatusOK, api.ContactResponse{
		StatusResponse: api.Success(msg),
		Contact:        contact,
	})
}

func contactMessage(contact domain.SellerContact) string {
	return strings.Join([]string{
		"Contacting seller for: " + contact.Title,
		"Location: " + contact.Location,
		"Price: " + contact.Price,
	}, "\n")
}

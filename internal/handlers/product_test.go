package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mkovalev/emarket/internal/models"
)

func TestGetProduct(t *testing.T) {
	env := newTestEnv(t)
	p := seedProduct(t, env, "keyboard", "49.99", 10)

	rec, _, c := env.doJSONRequest(http.MethodGet, "/api/products/1", nil)
	c.SetParamNames("id")
	c.SetParamValues(fmt.Sprint(p.ID))
	require.NoError(t, env.P.GetProduct(c))
	require.Equal(t, http.StatusOK, rec.Code)

	var got models.Product
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "keyboard", got.Name)
	assert.True(t, p.Price.Equal(got.Price))

	rec2, _, c2 := env.doJSONRequest(http.MethodGet, "/api/products/999", nil)
	c2.SetParamNames("id")
	c2.SetParamValues("999")
	require.NoError(t, env.P.GetProduct(c2))
	assert.Equal(t, http.StatusNotFound, rec2.Code)
}

func TestListProductsFilters(t *testing.T) {
	env := newTestEnv(t)
	seedProduct(t, env, "mechanical keyboard", "120.00", 5)
	seedProduct(t, env, "wireless mouse", "35.00", 5)
	p := seedProduct(t, env, "desk lamp", "20.00", 5)
	p.Category = models.CategoryHome
	require.NoError(t, env.DB.Save(p).Error)

	list := func(query string) (total int64, names []string) {
		rec, _, c := env.doJSONRequest(http.MethodGet, "/api/products?"+query, nil)
		require.NoError(t, env.P.GetProducts(c))
		require.Equal(t, http.StatusOK, rec.Code, "query %q", query)

		var resp struct {
			Data []models.Product `json:"data"`
			Meta struct {
				Total int64 `json:"total"`
			} `json:"meta"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		for _, item := range resp.Data {
			names = append(names, item.Name)
		}
		return resp.Meta.Total, names
	}

	total, _ := list("")
	assert.EqualValues(t, 3, total)

	total, names := list("search=KEYBOARD")
	assert.EqualValues(t, 1, total)
	assert.Equal(t, []string{"mechanical keyboard"}, names)

	total, names = list("category=Home")
	assert.EqualValues(t, 1, total)
	assert.Equal(t, []string{"desk lamp"}, names)

	total, names = list("min_price=30&max_price=130")
	assert.EqualValues(t, 2, total)
	assert.Equal(t, []string{"mechanical keyboard", "wireless mouse"}, names)

	rec, _, c := env.doJSONRequest(http.MethodGet, "/api/products?category=Gadgets", nil)
	require.NoError(t, env.P.GetProducts(c))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListProductsPagination(t *testing.T) {
	env := newTestEnv(t)
	for i := 0; i < 5; i++ {
		seedProduct(t, env, fmt.Sprintf("widget %d", i), "10.00", 1)
	}

	rec, _, c := env.doJSONRequest(http.MethodGet, "/api/products?page=2&size=2", nil)
	require.NoError(t, env.P.GetProducts(c))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Data []models.Product `json:"data"`
		Meta struct {
			TotalPages int64 `json:"total_pages"`
		} `json:"meta"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.Data, 2)
	assert.EqualValues(t, 3, resp.Meta.TotalPages)

	rec2, _, c2 := env.doJSONRequest(http.MethodGet, "/api/products?page=4&size=2", nil)
	require.NoError(t, env.P.GetProducts(c2))
	assert.Equal(t, http.StatusNotFound, rec2.Code)
}

func TestCreateProduct(t *testing.T) {
	env := newTestEnv(t)

	body := map[string]any{
		"name":        "keyboard",
		"description": "clacky",
		"price":       "49.99",
		"brand":       "Acme",
		"category":    "Electronics",
		"stock":       10,
	}
	rec, _, c := env.doJSONRequest(http.MethodPost, "/api/admin/products", body, authCookie(t, 3, "admin"))
	require.NoError(t, env.P.CreateProduct(c))
	require.Equal(t, http.StatusCreated, rec.Code)

	var got models.Product
	require.NoError(t, env.DB.First(&got).Error)
	assert.Equal(t, "keyboard", got.Name)
	require.NotNil(t, got.UserID)
	assert.EqualValues(t, 3, *got.UserID)

	body["category"] = "Gadgets"
	rec2, _, c2 := env.doJSONRequest(http.MethodPost, "/api/admin/products", body, authCookie(t, 3, "admin"))
	require.NoError(t, env.P.CreateProduct(c2))
	assert.Equal(t, http.StatusBadRequest, rec2.Code)
}

func TestPatchProduct(t *testing.T) {
	env := newTestEnv(t)
	p := seedProduct(t, env, "keyboard", "49.99", 10) // owner is user 1

	rec, _, c := env.doJSONRequest(http.MethodPatch, "/api/admin/products/1",
		map[string]any{"price": "59.99", "stock": 4}, authCookie(t, 1, "user"))
	c.SetParamNames("id")
	c.SetParamValues(fmt.Sprint(p.ID))
	require.NoError(t, env.P.PatchProduct(c))
	require.Equal(t, http.StatusOK, rec.Code)

	var got models.Product
	require.NoError(t, env.DB.First(&got, p.ID).Error)
	assert.True(t, decimal.RequireFromString("59.99").Equal(got.Price))
	assert.Equal(t, 4, got.Stock)
	assert.Equal(t, "keyboard", got.Name, "untouched field must survive a partial update")

	// a stranger may not edit someone else's listing
	_, _, c2 := env.doJSONRequest(http.MethodPatch, "/api/admin/products/1",
		map[string]any{"stock": 0}, authCookie(t, 2, "user"))
	c2.SetParamNames("id")
	c2.SetParamValues(fmt.Sprint(p.ID))
	err := env.P.PatchProduct(c2)
	he, ok := err.(*echo.HTTPError)
	require.True(t, ok)
	assert.Equal(t, http.StatusForbidden, he.Code)
}

func uploadImage(t *testing.T, env *testEnv, productID uint, filename string) models.ProductImage {
	t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("images", filename)
	require.NoError(t, err)
	_, err = fw.Write([]byte("fake image bytes"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/products/1/images", &buf)
	req.Header.Set(echo.HeaderContentType, mw.FormDataContentType())
	req.AddCookie(authCookie(t, 1, "user"))
	rec := httptest.NewRecorder()
	c := env.E.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(fmt.Sprint(productID))

	require.NoError(t, env.P.UploadImages(c))
	require.Equal(t, http.StatusCreated, rec.Code)

	var created []models.ProductImage
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	require.Len(t, created, 1)
	return created[0]
}

func TestUploadImages(t *testing.T) {
	env := newTestEnv(t)
	p := seedProduct(t, env, "keyboard", "49.99", 10)

	var img models.ProductImage
	require.NoError(t, env.DB.First(&img, "id = ?", uploadImage(t, env, p.ID, "front.jpg").ID).Error)
	require.NotNil(t, img.ProductID)
	assert.Equal(t, p.ID, *img.ProductID)
	assert.Contains(t, img.URL, "/media/products/")

	_, err := os.Stat(filepath.Join(env.Blobs.Dir, filepath.FromSlash(img.Path)))
	assert.NoError(t, err, "blob must exist on disk")
}

// Deleting a product removes its image rows and blobs but leaves already
// placed order items intact with their product reference nulled.
func TestDeleteProductCleansUp(t *testing.T) {
	env := newTestEnv(t)
	p := seedProduct(t, env, "keyboard", "49.99", 10)
	img := uploadImage(t, env, p.ID, "front.jpg")

	productID := p.ID
	order := seedOrder(t, env, 7)
	require.NoError(t, env.DB.Model(&models.OrderItem{}).
		Where("order_id = ?", order.ID).
		Update("product_id", productID).Error)

	rec, _, c := env.doJSONRequest(http.MethodDelete, "/api/admin/products/1", nil, authCookie(t, 1, "user"))
	c.SetParamNames("id")
	c.SetParamValues(fmt.Sprint(p.ID))
	require.NoError(t, env.P.DeleteProduct(c))
	require.Equal(t, http.StatusNoContent, rec.Code)

	var images int64
	require.NoError(t, env.DB.Model(&models.ProductImage{}).Where("product_id = ?", p.ID).Count(&images).Error)
	assert.Zero(t, images)

	_, err := os.Stat(filepath.Join(env.Blobs.Dir, filepath.FromSlash(img.Path)))
	assert.True(t, os.IsNotExist(err), "blob must be removed with the product")

	var item models.OrderItem
	require.NoError(t, env.DB.Where("order_id = ?", order.ID).First(&item).Error)
	assert.Equal(t, "thing", item.Name, "order snapshot survives catalog deletion")
	assert.Nil(t, item.ProductID)
}

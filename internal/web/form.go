package web

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/JonMunkholm/listing-import/internal/core"
	"github.com/JonMunkholm/listing-import/internal/labels"
)

// importForm is the multipart form of an import submission. The two
// spreadsheets travel as the "listings" and "children" file parts.
type importForm struct {
	Kind            string   `form:"kind" validate:"required,oneof=auction catalog lot"`
	SellerID        string   `form:"seller_id" validate:"required,uuid"`
	SellerPublicID  string   `form:"seller_public_id" validate:"required,max=64"`
	Currency        string   `form:"currency" validate:"omitempty,len=3,alpha"`
	Publish         bool     `form:"publish"`
	ToleratePartial *bool    `form:"tolerate_partial"`
	States          []string `form:"visibility_states" validate:"dive,required,max=64"`
	Countries       []string `form:"visibility_countries" validate:"dive,required,len=2,alpha"`
	Segments        []string `form:"visibility_segments" validate:"dive,required,max=64"`
	Zips            []string `form:"visibility_zips" validate:"dive,required,max=16"`
	Cities          []string `form:"visibility_cities" validate:"dive,required,max=128"`
}

// Accepted spreadsheet extensions.
var allowedExtensions = map[string]bool{
	".csv":  true,
	".txt":  true,
	".xlsx": true,
	".xlsm": true,
}

func newValidator() *validator.Validate {
	return validator.New(validator.WithRequiredStructEnabled())
}

// parseImportRequest reads and validates the multipart form. Problems are
// reported together as a *core.ConfigurationError.
func (s *Server) parseImportRequest(w http.ResponseWriter, r *http.Request) (core.ImportRequest, error) {
	maxSize := s.cfg.Import.MaxFileSize
	// Two files plus form fields.
	r.Body = http.MaxBytesReader(w, r.Body, 2*maxSize+1<<20)

	if err := r.ParseMultipartForm(maxSize); err != nil {
		return core.ImportRequest{}, &core.ConfigurationError{Problems: []string{"file too large or invalid form"}}
	}

	form, problems := readForm(r)
	if err := s.validate.Struct(form); err != nil {
		problems = append(problems, describeValidation(err)...)
	}

	listings, err := readFile(r, "listings", maxSize)
	if err != nil {
		problems = append(problems, err.Error())
	}
	var children *core.File
	if _, ok := r.MultipartForm.File["children"]; ok {
		f, err := readFile(r, "children", maxSize)
		if err != nil {
			problems = append(problems, err.Error())
		} else {
			children = &f
		}
	}

	if len(problems) > 0 {
		return core.ImportRequest{}, &core.ConfigurationError{Problems: problems}
	}

	kind, _ := core.ParseListingKind(form.Kind)
	return core.ImportRequest{
		Kind:            kind,
		SellerID:        uuid.MustParse(form.SellerID),
		SellerPublicID:  form.SellerPublicID,
		Currency:        strings.ToUpper(form.Currency),
		Listings:        listings,
		Children:        children,
		Publish:         form.Publish,
		ToleratePartial: form.ToleratePartial,
		Visibility:      form.visibility(),
	}, nil
}

// readForm copies the text fields. Booleans that do not parse are
// reported; lists accept repeated fields and comma-separated values.
func readForm(r *http.Request) (importForm, []string) {
	var problems []string
	f := importForm{
		Kind:           strings.ToLower(strings.TrimSpace(r.FormValue("kind"))),
		SellerID:       strings.TrimSpace(r.FormValue("seller_id")),
		SellerPublicID: strings.TrimSpace(r.FormValue("seller_public_id")),
		Currency:       strings.TrimSpace(r.FormValue("currency")),
		States:         formList(r, "visibility_states"),
		Countries:      formList(r, "visibility_countries"),
		Segments:       formList(r, "visibility_segments"),
		Zips:           formList(r, "visibility_zips"),
		Cities:         formList(r, "visibility_cities"),
	}

	if v := strings.TrimSpace(r.FormValue("publish")); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			problems = append(problems, fmt.Sprintf("publish: %q is not a boolean", v))
		}
		f.Publish = b
	}
	if v := strings.TrimSpace(r.FormValue("tolerate_partial")); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			problems = append(problems, fmt.Sprintf("tolerate_partial: %q is not a boolean", v))
		} else {
			f.ToleratePartial = &b
		}
	}
	return f, problems
}

func formList(r *http.Request, key string) []string {
	var out []string
	for _, v := range r.Form[key] {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func (f importForm) visibility() []core.VisibilityRule {
	var rules []core.VisibilityRule
	add := func(typ string, values []string, norm func(string) string) {
		for _, v := range values {
			rules = append(rules, core.VisibilityRule{Type: typ, Value: norm(v)})
		}
	}
	add(core.VisibilityState, f.States, labels.NormalizeState)
	add(core.VisibilityCountry, f.Countries, strings.ToUpper)
	add(core.VisibilityBuyerSegment, f.Segments, strings.ToUpper)
	add(core.VisibilityZip, f.Zips, strings.TrimSpace)
	add(core.VisibilityCity, f.Cities, strings.TrimSpace)
	return rules
}

func readFile(r *http.Request, field string, maxSize int64) (core.File, error) {
	file, header, err := r.FormFile(field)
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return core.File{}, fmt.Errorf("%s: no file provided", field)
		}
		return core.File{}, fmt.Errorf("%s: %v", field, err)
	}
	defer file.Close()
	return readPart(field, file, header, maxSize)
}

func readPart(field string, file multipart.File, header *multipart.FileHeader, maxSize int64) (core.File, error) {
	ext := strings.ToLower(filepath.Ext(header.Filename))
	if !allowedExtensions[ext] {
		return core.File{}, fmt.Errorf("%s: unsupported file type %q, use .csv or .xlsx", field, ext)
	}
	if header.Size > maxSize {
		return core.File{}, fmt.Errorf("%s: file exceeds %d bytes", field, maxSize)
	}

	data, err := io.ReadAll(io.LimitReader(file, maxSize+1))
	if err != nil {
		return core.File{}, fmt.Errorf("%s: read: %v", field, err)
	}
	if int64(len(data)) > maxSize {
		return core.File{}, fmt.Errorf("%s: file exceeds %d bytes", field, maxSize)
	}
	return core.File{Name: filepath.Base(header.Filename), Data: data}, nil
}

// describeValidation turns validator errors into form field messages.
func describeValidation(err error) []string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []string{err.Error()}
	}
	out := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		out = append(out, fmt.Sprintf("%s: failed %s%s", formName(fe), fe.Tag(), param(fe.Param())))
	}
	return out
}

// formName maps a struct field back to its form key, keeping list indexes.
func formName(fe validator.FieldError) string {
	names := map[string]string{
		"Kind":           "kind",
		"SellerID":       "seller_id",
		"SellerPublicID": "seller_public_id",
		"Currency":       "currency",
		"States":         "visibility_states",
		"Countries":      "visibility_countries",
		"Segments":       "visibility_segments",
		"Zips":           "visibility_zips",
		"Cities":         "visibility_cities",
	}
	field := fe.StructField()
	base, index, _ := strings.Cut(field, "[")
	if name, ok := names[base]; ok {
		if index != "" {
			return name + "[" + index
		}
		return name
	}
	return field
}

func param(p string) string {
	if p == "" {
		return ""
	}
	return "=" + p
}

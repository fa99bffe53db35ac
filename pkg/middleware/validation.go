package middleware

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"slices"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
)

// SignupRequest はアカウント作成リクエストのJSON構造。
type SignupRequest struct {
	// Name は表示名。3〜100文字。
	Name string `json:"name" binding:"required,min=3,max=100"`
	// Email はメールアドレス。
	Email string `json:"email" binding:"required,email"`
	// Password はパスワード。8〜100文字。
	Password string `json:"password" binding:"required,min=8,max=100"`
}

// LoginRequest はログインリクエストのJSON構造。
type LoginRequest struct {
	// Email はメールアドレス。
	Email string `json:"email" binding:"required,email"`
	// Password はパスワード。8〜100文字。
	Password string `json:"password" binding:"required,min=8,max=100"`
}

// FieldError は1つの制約違反を表す。
type FieldError struct {
	// Field は違反したフィールドのJSON名。ボディ全体の場合は "body"。
	Field string `json:"field"`
	// Rule は違反した制約名（required, min, max, email, string, unknown, object, json）。
	Rule string `json:"rule"`
	// Param は制約の引数（min=3 の "3" など）。
	Param string `json:"param,omitempty"`
	// Message は人が読むためのメッセージ。
	Message string `json:"message"`
}

// ValidationError は400レスポンスの error フィールド。
type ValidationError struct {
	// Details は違反した制約の一覧。構造体のフィールド順に並ぶ。
	Details []FieldError `json:"details"`
}

// Error はerrorインターフェースを満たす。
func (e *ValidationError) Error() string {
	msgs := make([]string, 0, len(e.Details))
	for _, d := range e.Details {
		msgs = append(msgs, d.Message)
	}
	return strings.Join(msgs, "; ")
}

// contextKeyValidatedBody は検証済みボディを格納するGinコンテキストのキー。
const contextKeyValidatedBody = "validated_body"

// bodyField はボディ全体に関するエラーのフィールド名。
const bodyField = "body"

// validate はbindingタグを解釈するバリデータ。フィールド名はjsonタグから取る。
var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.SetTagName("binding")
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		if name == "" {
			return f.Name
		}
		return name
	})
	return v
}

// SignupValidation はアカウント作成リクエストのボディを検証するGinミドルウェアを返す。
func SignupValidation() gin.HandlerFunc {
	return ValidateJSON[SignupRequest]()
}

// LoginValidation はログインリクエストのボディを検証するGinミドルウェアを返す。
func LoginValidation() gin.HandlerFunc {
	return ValidateJSON[LoginRequest]()
}

// ValidateJSON はリクエストボディをTとしてデコードし、bindingタグの制約で検証する
// Ginミドルウェアを返す。
//
// 違反があれば400と {"message": "Bad Request", "error": ValidationError} を返して中断する。
// 成功した場合はボディを読み直せる状態に戻し、検証済みの値を ValidatedBody で取得できるようにする。
func ValidateJSON[T any]() gin.HandlerFunc {
	return func(c *gin.Context) {
		var raw []byte
		if c.Request.Body != nil {
			var err error
			raw, err = io.ReadAll(c.Request.Body)
			if err != nil {
				abortBadRequest(c, &ValidationError{Details: []FieldError{{
					Field:   bodyField,
					Rule:    "read",
					Message: "request body could not be read",
				}}})
				return
			}
		}
		c.Request.Body = io.NopCloser(bytes.NewReader(raw))

		value, verr := decodeAndValidate[T](raw)
		if verr != nil {
			abortBadRequest(c, verr)
			return
		}

		c.Set(contextKeyValidatedBody, value)
		c.Next()
	}
}

// ValidatedBody はValidateJSONが格納した検証済みボディを取得する。
func ValidatedBody[T any](c *gin.Context) (T, bool) {
	var zero T
	v, ok := c.Get(contextKeyValidatedBody)
	if !ok {
		return zero, false
	}
	value, ok := v.(T)
	return value, ok
}

// decodeAndValidate はJSONをTにデコードして制約を検証する。
// 空のボディは {} として扱う。
func decodeAndValidate[T any](raw []byte) (T, *ValidationError) {
	var value T

	if len(bytes.TrimSpace(raw)) > 0 {
		if verr := checkObjectKeys(raw, jsonFieldNames(reflect.TypeFor[T]())); verr != nil {
			return value, verr
		}
		if err := json.Unmarshal(raw, &value); err != nil {
			return value, &ValidationError{Details: []FieldError{decodeFieldError(err)}}
		}
	}

	if err := validate.Struct(value); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return value, &ValidationError{Details: []FieldError{{
				Field:   bodyField,
				Rule:    "invalid",
				Message: err.Error(),
			}}}
		}
		details := make([]FieldError, 0, len(verrs))
		for _, fe := range verrs {
			details = append(details, FieldError{
				Field:   fe.Field(),
				Rule:    fe.Tag(),
				Param:   fe.Param(),
				Message: constraintMessage(fe.Field(), fe.Tag(), fe.Param()),
			})
		}
		return value, &ValidationError{Details: details}
	}

	return value, nil
}

// checkObjectKeys はボディが単一のJSONオブジェクトであり、
// キーがallowedのいずれかと大文字小文字まで一致することを確認する。
// encoding/json のキー照合は大文字小文字を区別しないため、構造体へのデコード前に行う。
func checkObjectKeys(raw []byte, allowed map[string]struct{}) *ValidationError {
	dec := json.NewDecoder(bytes.NewReader(raw))

	var fields map[string]json.RawMessage
	if err := dec.Decode(&fields); err != nil {
		return &ValidationError{Details: []FieldError{decodeFieldError(err)}}
	}
	if fields == nil {
		return &ValidationError{Details: []FieldError{notObjectError()}}
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return &ValidationError{Details: []FieldError{{
			Field:   bodyField,
			Rule:    "json",
			Message: "body must contain a single JSON object",
		}}}
	}

	var unknown []string
	for key := range fields {
		if _, ok := allowed[key]; !ok {
			unknown = append(unknown, key)
		}
	}
	if len(unknown) == 0 {
		return nil
	}
	slices.Sort(unknown)

	details := make([]FieldError, 0, len(unknown))
	for _, key := range unknown {
		details = append(details, FieldError{
			Field:   key,
			Rule:    "unknown",
			Message: fmt.Sprintf(`%q is not allowed`, key),
		})
	}
	return &ValidationError{Details: details}
}

// jsonFieldNames は構造体のjsonタグ名の集合を返す。
func jsonFieldNames(t reflect.Type) map[string]struct{} {
	names := make(map[string]struct{})
	if t.Kind() != reflect.Struct {
		return names
	}
	for i := range t.NumField() {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		switch name {
		case "-":
			continue
		case "":
			name = f.Name
		}
		names[name] = struct{}{}
	}
	return names
}

// decodeFieldError はjsonのデコードエラーを FieldError に変換する。
func decodeFieldError(err error) FieldError {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		if typeErr.Field == "" {
			return notObjectError()
		}
		return FieldError{
			Field:   typeErr.Field,
			Rule:    typeErr.Type.Kind().String(),
			Message: fmt.Sprintf(`%q must be a %s`, typeErr.Field, typeErr.Type.Kind()),
		}
	}

	return FieldError{
		Field:   bodyField,
		Rule:    "json",
		Message: "body must be valid JSON",
	}
}

// notObjectError はボディがJSONオブジェクトでない場合の FieldError を返す。
func notObjectError() FieldError {
	return FieldError{
		Field:   bodyField,
		Rule:    "object",
		Message: fmt.Sprintf(`%q must be of type object`, bodyField),
	}
}

// constraintMessage は制約違反のメッセージを組み立てる。
func constraintMessage(field, rule, param string) string {
	switch rule {
	case "required":
		return fmt.Sprintf(`%q is required`, field)
	case "min":
		return fmt.Sprintf(`%q length must be at least %s characters long`, field, param)
	case "max":
		return fmt.Sprintf(`%q length must be less than or equal to %s characters long`, field, param)
	case "email":
		return fmt.Sprintf(`%q must be a valid email`, field)
	default:
		return fmt.Sprintf(`%q failed on the %q rule`, field, rule)
	}
}

// abortBadRequest は400レスポンスを書き込み、後続のハンドラを中断する。
func abortBadRequest(c *gin.Context, verr *ValidationError) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
		"message": "Bad Request",
		"error":   verr,
	})
}

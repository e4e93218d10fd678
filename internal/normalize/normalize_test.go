package normalize

import (
	"bytes"
	"image"
	"image/color"
	"image/gif"
	"image/png"
	"log/slog"
	"testing"

	"golang.org/x/image/bmp"
)

// testImage создаёт тестовое изображение с детерминированным паттерном.
func testImage(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{
				R: uint8(x * 7 % 256),
				G: uint8(y * 13 % 256),
				B: uint8((x + y) * 3 % 256),
				A: 255,
			})
		}
	}
	return img
}

// encodePNG кодирует изображение в PNG.
func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("кодирование PNG: %v", err)
	}
	return buf.Bytes()
}

// encodeBMP кодирует изображение в BMP.
func encodeBMP(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := bmp.Encode(&buf, img); err != nil {
		t.Fatalf("кодирование BMP: %v", err)
	}
	return buf.Bytes()
}

// TestImage_Idempotence проверяет, что normalize(normalize(x)) == normalize(x)
// байт-в-байт.
func TestImage_Idempotence(t *testing.T) {
	n := New(slog.Default())
	src := encodePNG(t, testImage(32, 24))

	first := n.Image(src)
	if !first.Normalized {
		t.Fatal("первая нормализация не выполнена")
	}

	second := n.Image(first.Bytes)
	if !second.Normalized {
		t.Fatal("повторная нормализация не выполнена")
	}

	if !bytes.Equal(first.Bytes, second.Bytes) {
		t.Error("нормализация не идемпотентна: повторный проход изменил байты")
	}
}

// TestImage_CrossFormat проверяет, что один пиксельный контент в разных
// контейнерах нормализуется в идентичные байты.
func TestImage_CrossFormat(t *testing.T) {
	n := New(slog.Default())
	img := testImage(16, 16)

	fromPNG := n.Image(encodePNG(t, img))
	fromBMP := n.Image(encodeBMP(t, img))

	if !fromPNG.Normalized || !fromBMP.Normalized {
		t.Fatal("нормализация одного из форматов не выполнена")
	}

	if !bytes.Equal(fromPNG.Bytes, fromBMP.Bytes) {
		t.Error("PNG и BMP с одинаковыми пикселями нормализовались в разные байты")
	}
}

// TestImage_AlphaComposite проверяет композицию на белый фон:
// полностью прозрачное изображение эквивалентно белому.
func TestImage_AlphaComposite(t *testing.T) {
	n := New(slog.Default())

	transparent := image.NewRGBA(image.Rect(0, 0, 8, 8))
	white := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			white.Set(x, y, color.RGBA{255, 255, 255, 255})
		}
	}

	fromTransparent := n.Image(encodePNG(t, transparent))
	fromWhite := n.Image(encodePNG(t, white))

	if !bytes.Equal(fromTransparent.Bytes, fromWhite.Bytes) {
		t.Error("прозрачное изображение и белое изображение нормализовались в разные байты")
	}
}

// TestImage_Fallback проверяет fallback на исходные байты
// при невозможности декодирования.
func TestImage_Fallback(t *testing.T) {
	n := New(slog.Default())
	garbage := []byte("это не изображение вовсе")

	res := n.Image(garbage)

	if res.Normalized {
		t.Error("Normalized = true для недекодируемых данных")
	}
	if !bytes.Equal(res.Bytes, garbage) {
		t.Error("fallback изменил исходные байты")
	}
}

// TestImage_GIF проверяет нормализацию GIF (палитровое изображение).
func TestImage_GIF(t *testing.T) {
	n := New(slog.Default())

	img := testImage(10, 10)
	var buf bytes.Buffer
	if err := gif.Encode(&buf, img, nil); err != nil {
		t.Fatalf("кодирование GIF: %v", err)
	}

	res := n.Image(buf.Bytes())
	if !res.Normalized {
		t.Fatal("нормализация GIF не выполнена")
	}
	if res.SourceFormat != "gif" {
		t.Errorf("SourceFormat = %q, ожидался gif", res.SourceFormat)
	}
	if res.Width != 10 || res.Height != 10 {
		t.Errorf("размеры = %dx%d, ожидались 10x10", res.Width, res.Height)
	}
}

// TestImage_ReportedDimensions проверяет натуральные размеры в результате.
func TestImage_ReportedDimensions(t *testing.T) {
	n := New(slog.Default())
	res := n.Image(encodePNG(t, testImage(42, 17)))

	if !res.Normalized {
		t.Fatal("нормализация не выполнена")
	}
	if res.Width != 42 || res.Height != 17 {
		t.Errorf("размеры = %dx%d, ожидались 42x17", res.Width, res.Height)
	}
}

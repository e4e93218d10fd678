// Пакет normalize — канонизация изображений в воспроизводимую байтовую форму.
//
// Одинаковый визуальный контент в разных контейнерах (PNG, JPEG, GIF,
// BMP, TIFF, WebP) после нормализации даёт идентичные байты и, как
// следствие, идентичный контент-хэш. Алгоритм: декодирование в пиксельный
// буфер натурального размера, композиция на непрозрачный белый фон
// (устраняет вариативность альфа-канала), детерминированная lossless
// PNG-перекодировка.
//
// Не-изображения (видео, аудио, документы) нормализацию не проходят
// и хэшируются как есть — решение принимает вызывающий код по media_type.
package normalize

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"log/slog"

	// Регистрация декодеров стандартной библиотеки
	_ "image/gif"
	_ "image/jpeg"

	// Регистрация дополнительных декодеров golang.org/x/image
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// Result — результат нормализации.
type Result struct {
	// Bytes — канонические байты (PNG) либо исходные при fallback
	Bytes []byte
	// Normalized — true, если перекодировка выполнена успешно.
	// false — известный пробел корректности: хэш fallback-пути может
	// разойтись с хэшем успешно нормализованной копии того же изображения.
	Normalized bool
	// SourceFormat — формат исходного контейнера ("png", "jpeg", ...),
	// пустая строка при fallback
	SourceFormat string
	// Width, Height — натуральные размеры изображения (0 при fallback)
	Width  int
	Height int
}

// Normalizer — канонизатор изображений.
type Normalizer struct {
	logger *slog.Logger
}

// New создаёт Normalizer.
func New(logger *slog.Logger) *Normalizer {
	return &Normalizer{
		logger: logger.With(slog.String("component", "normalizer")),
	}
}

// Image канонизирует байты изображения.
// При любой ошибке декодирования/перекодировки возвращает исходные
// байты с флагом Normalized=false — деградация, не ошибка.
func (n *Normalizer) Image(data []byte) *Result {
	canonical, format, w, h, err := reencode(data)
	if err != nil {
		n.logger.Warn("Нормализация не выполнена, используются исходные байты",
			slog.String("reason", err.Error()),
		)
		return &Result{Bytes: data, Normalized: false}
	}

	return &Result{
		Bytes:        canonical,
		Normalized:   true,
		SourceFormat: format,
		Width:        w,
		Height:       h,
	}
}

// reencode декодирует изображение и перекодирует его в канонический PNG.
func reencode(data []byte) ([]byte, string, int, int, error) {
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", 0, 0, fmt.Errorf("декодирование изображения: %w", err)
	}

	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()
	if width <= 0 || height <= 0 {
		return nil, "", 0, 0, fmt.Errorf("недопустимые размеры изображения %dx%d", width, height)
	}

	// Композиция на непрозрачный белый фон в натуральном размере.
	// Канонизирует альфа-канал: полупрозрачные пиксели смешиваются
	// с белым, прозрачные становятся белыми.
	canvas := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(canvas, canvas.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	draw.Draw(canvas, canvas.Bounds(), img, bounds.Min, draw.Over)

	// Детерминированная lossless-перекодировка: фиксированный формат (PNG),
	// фиксированное цветовое пространство (RGBA), максимальное качество.
	var buf bytes.Buffer
	enc := png.Encoder{CompressionLevel: png.BestCompression}
	if err := enc.Encode(&buf, canvas); err != nil {
		return nil, "", 0, 0, fmt.Errorf("перекодировка в PNG: %w", err)
	}

	return buf.Bytes(), format, width, height, nil
}

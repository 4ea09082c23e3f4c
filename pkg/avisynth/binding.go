//go:build avisynth && cgo

package avisynth

/*
#cgo linux LDFLAGS: -ldl

#include <stdlib.h>
#include <stdint.h>

#ifdef _WIN32
#include <windows.h>
#if defined(_M_IX86) || defined(__i386__)
#define AVSC_CC __stdcall
#else
#define AVSC_CC
#endif
typedef HMODULE avs_lib;
static avs_lib avs_dlopen(const char* name) { return LoadLibraryA(name); }
static void* avs_dlsym(avs_lib h, const char* sym) { return (void*)GetProcAddress(h, sym); }
static void avs_dlclose(avs_lib h) { FreeLibrary(h); }
static const char* avs_dlerror(void) { return "LoadLibrary failed"; }
#else
#include <dlfcn.h>
#define AVSC_CC
typedef void* avs_lib;
static avs_lib avs_dlopen(const char* name) { return dlopen(name, RTLD_NOW | RTLD_LOCAL); }
static void* avs_dlsym(avs_lib h, const char* sym) { return dlsym(h, sym); }
static void avs_dlclose(avs_lib h) { dlclose(h); }
static const char* avs_dlerror(void) { const char* e = dlerror(); return e ? e : "unknown error"; }
#endif

// Layouts from avisynth_c.h
typedef struct AVS_Clip AVS_Clip;
typedef struct AVS_ScriptEnvironment AVS_ScriptEnvironment;
typedef struct AVS_VideoFrame AVS_VideoFrame;

typedef struct AVS_Value AVS_Value;
struct AVS_Value {
	short type;
	short array_size;
	union {
		void* clip;
		char boolean;
		int integer;
		float floating_pt;
		const char* string;
		const AVS_Value* array;
		int64_t longlong;
		double double_pt;
	} d;
};

typedef struct {
	int width, height;
	unsigned fps_numerator, fps_denominator;
	int num_frames;
	int pixel_type;
	int audio_samples_per_second;
	int sample_type;
	int64_t num_audio_samples;
	int nchannels;
	int image_type;
} AVS_VideoInfo;

// AVISYNTH_INTERFACE_VERSION for 2.5, the first with planar YV12
#define AVS_INTERFACE_25 2

typedef struct {
	avs_lib lib;
	AVS_ScriptEnvironment* (AVSC_CC *create_script_environment)(int);
	AVS_Value (AVSC_CC *invoke)(AVS_ScriptEnvironment*, const char*, AVS_Value, const char**);
	void (AVSC_CC *release_value)(AVS_Value);
	AVS_Clip* (AVSC_CC *take_clip)(AVS_Value, AVS_ScriptEnvironment*);
	void (AVSC_CC *release_clip)(AVS_Clip*);
	const AVS_VideoInfo* (AVSC_CC *get_video_info)(AVS_Clip*);
	AVS_VideoFrame* (AVSC_CC *get_frame)(AVS_Clip*, int);
	void (AVSC_CC *release_video_frame)(AVS_VideoFrame*);
	const char* (AVSC_CC *clip_get_error)(AVS_Clip*);
	int (AVSC_CC *function_exists)(AVS_ScriptEnvironment*, const char*);
	int (AVSC_CC *get_pitch_p)(const AVS_VideoFrame*, int);
	const uint8_t* (AVSC_CC *get_read_ptr_p)(const AVS_VideoFrame*, int);
	int (AVSC_CC *get_row_size_p)(const AVS_VideoFrame*, int);

	// optional
	void (AVSC_CC *delete_script_environment)(AVS_ScriptEnvironment*);
	const char* (AVSC_CC *get_error)(AVS_ScriptEnvironment*);
	int (AVSC_CC *bits_per_component)(const AVS_VideoInfo*);
} avs_api;

#define AVS_LOAD(field, required) \
	a->field = (void*)avs_dlsym(a->lib, "avs_" #field); \
	if (required && !a->field) { *missing = "avs_" #field; return -2; }

// avs_load resolves the function table. It returns 0 on success, -1 when the
// library can't be opened and -2 when a required symbol is missing.
static int avs_load(avs_api* a, const char* name, const char** missing) {
	a->lib = avs_dlopen(name);
	if (!a->lib) {
		*missing = avs_dlerror();
		return -1;
	}
	AVS_LOAD(create_script_environment, 1)
	AVS_LOAD(invoke, 1)
	AVS_LOAD(release_value, 1)
	AVS_LOAD(take_clip, 1)
	AVS_LOAD(release_clip, 1)
	AVS_LOAD(get_video_info, 1)
	AVS_LOAD(get_frame, 1)
	AVS_LOAD(release_video_frame, 1)
	AVS_LOAD(clip_get_error, 1)
	AVS_LOAD(function_exists, 1)
	AVS_LOAD(get_pitch_p, 1)
	AVS_LOAD(get_read_ptr_p, 1)
	AVS_LOAD(get_row_size_p, 1)
	AVS_LOAD(delete_script_environment, 0)
	AVS_LOAD(get_error, 0)
	AVS_LOAD(bits_per_component, 0)
	return 0;
}

static void avs_unload(avs_api* a) {
	if (a->lib) {
		avs_dlclose(a->lib);
		a->lib = NULL;
	}
}

static AVS_ScriptEnvironment* avs_c_create_env(avs_api* a) {
	return a->create_script_environment(AVS_INTERFACE_25);
}

static void avs_c_delete_env(avs_api* a, AVS_ScriptEnvironment* env) {
	if (a->delete_script_environment) a->delete_script_environment(env);
}

static const char* avs_c_env_error(avs_api* a, AVS_ScriptEnvironment* env) {
	return a->get_error ? a->get_error(env) : NULL;
}

static int avs_c_function_exists(avs_api* a, AVS_ScriptEnvironment* env, const char* name) {
	return a->function_exists(env, name);
}

static AVS_Value avs_c_void(void) {
	AVS_Value v;
	v.type = 'v';
	v.array_size = 0;
	v.d.longlong = 0;
	return v;
}

static AVS_Value avs_c_invoke_string(avs_api* a, AVS_ScriptEnvironment* env, const char* fn, const char* arg) {
	AVS_Value v = avs_c_void();
	v.type = 's';
	v.d.string = arg;
	return a->invoke(env, fn, v, NULL);
}

static AVS_Value avs_c_invoke_bool(avs_api* a, AVS_ScriptEnvironment* env, const char* fn, int arg) {
	AVS_Value v = avs_c_void();
	v.type = 'b';
	v.d.boolean = arg ? 1 : 0;
	return a->invoke(env, fn, v, NULL);
}

static AVS_Value avs_c_invoke_clip(avs_api* a, AVS_ScriptEnvironment* env, const char* fn, AVS_Value clip) {
	return a->invoke(env, fn, clip, NULL);
}

static AVS_Value avs_c_invoke_convert(avs_api* a, AVS_ScriptEnvironment* env, const char* fn, AVS_Value clip, int interlaced) {
	AVS_Value args[2];
	const char* names[2] = {NULL, "interlaced"};
	AVS_Value arr = avs_c_void();
	args[0] = clip;
	args[1] = avs_c_void();
	args[1].type = 'b';
	args[1].d.boolean = interlaced ? 1 : 0;
	arr.type = 'a';
	arr.array_size = 2;
	arr.d.array = args;
	return a->invoke(env, fn, arr, names);
}

static int avs_c_is_error(AVS_Value v) { return v.type == 'e'; }
static int avs_c_is_clip(AVS_Value v) { return v.type == 'c'; }
static int avs_c_is_int(AVS_Value v) { return v.type == 'i'; }
static int avs_c_as_int(AVS_Value v) { return v.d.integer; }
static const char* avs_c_as_error(AVS_Value v) { return v.type == 'e' ? v.d.string : NULL; }

static void avs_c_release_value(avs_api* a, AVS_Value v) { a->release_value(v); }

static AVS_Clip* avs_c_take_clip(avs_api* a, AVS_Value v, AVS_ScriptEnvironment* env) {
	return a->take_clip(v, env);
}

static void avs_c_release_clip(avs_api* a, AVS_Clip* c) { a->release_clip(c); }

// avs_c_video_info copies the fields the converter uses.
static void avs_c_video_info(avs_api* a, AVS_Clip* c, int out[8], unsigned fps[2]) {
	const AVS_VideoInfo* vi = a->get_video_info(c);
	out[0] = vi->width;
	out[1] = vi->height;
	out[2] = vi->num_frames;
	out[3] = vi->pixel_type;
	out[4] = vi->image_type;
	out[5] = a->bits_per_component ? a->bits_per_component(vi) : 0;
	fps[0] = vi->fps_numerator;
	fps[1] = vi->fps_denominator;
}

static AVS_VideoFrame* avs_c_get_frame(avs_api* a, AVS_Clip* c, int n, const char** err) {
	AVS_VideoFrame* f = a->get_frame(c, n);
	*err = a->clip_get_error(c);
	return f;
}

static void avs_c_release_frame(avs_api* a, AVS_VideoFrame* f) { a->release_video_frame(f); }

static const uint8_t* avs_c_plane(avs_api* a, AVS_VideoFrame* f, int plane, int* pitch, int* row_size) {
	*pitch = a->get_pitch_p(f, plane);
	*row_size = a->get_row_size_p(f, plane);
	return a->get_read_ptr_p(f, plane);
}
*/
import "C"

import (
	"context"
	"errors"
	"fmt"
	"unsafe"

	"github.com/video-system/go-avs2yuv/pkg/engine"
	"github.com/video-system/go-avs2yuv/pkg/failure"
)

// Engine is a loaded AviSynth library with one script environment
type Engine struct {
	api  *C.avs_api
	env  *C.AVS_ScriptEnvironment
	caps engine.Capabilities
}

var _ engine.Engine = (*Engine)(nil)
var _ engine.ThreadingProbe = (*Engine)(nil)

// Open loads library (DefaultLibrary when empty), resolves the C API and
// creates a script environment.
func Open(library string) (*Engine, error) {
	if library == "" {
		library = DefaultLibrary()
	}
	api := (*C.avs_api)(C.calloc(1, C.size_t(unsafe.Sizeof(C.avs_api{}))))
	if api == nil {
		return nil, failure.New(failure.KindEngineLoad, "failed to allocate engine function table")
	}

	cname := C.CString(library)
	defer C.free(unsafe.Pointer(cname))

	var missing *C.char
	switch C.avs_load(api, cname, &missing) {
	case 0:
	case -1:
		C.free(unsafe.Pointer(api))
		return nil, failure.Wrap(failure.KindEngineLoad, errors.New(C.GoString(missing)), "failed to load %s", library)
	default:
		name := C.GoString(missing)
		C.avs_unload(api)
		C.free(unsafe.Pointer(api))
		return nil, failure.New(failure.KindEngineLoad, "%s is missing required function %s", library, name)
	}

	e := &Engine{
		api: api,
		caps: engine.Capabilities{
			HighBitDepth:      api.bits_per_component != nil,
			DeleteEnvironment: api.delete_script_environment != nil,
			ErrorQuery:        api.get_error != nil,
		},
	}
	e.env = C.avs_c_create_env(api)
	if e.env == nil {
		e.unload()
		return nil, failure.New(failure.KindEngineLoad, "failed to create script environment")
	}
	if msg := C.avs_c_env_error(api, e.env); msg != nil {
		err := failure.New(failure.KindEngineLoad, "%s", C.GoString(msg))
		_ = e.Close()
		return nil, err
	}
	return e, nil
}

func (e *Engine) Capabilities() engine.Capabilities {
	return e.caps
}

// Import evaluates the script at path.
func (e *Engine) Import(ctx context.Context, path string) (engine.Clip, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	fn := C.CString("Import")
	defer C.free(unsafe.Pointer(fn))
	arg := C.CString(path)
	defer C.free(unsafe.Pointer(arg))

	res := C.avs_c_invoke_string(e.api, e.env, fn, arg)
	c, err := e.takeClip(res)
	if err != nil {
		return nil, failure.Wrap(failure.KindScript, err, "couldn't import %s", path)
	}
	return c, nil
}

// NeedsDistributor reports whether the script runs in an AviSynth MT mode
// that requires a Distributor at the end of the filter chain.
func (e *Engine) NeedsDistributor(engine.Clip) bool {
	fn := C.CString("GetMTMode")
	defer C.free(unsafe.Pointer(fn))
	if C.avs_c_function_exists(e.api, e.env, fn) == 0 {
		return false
	}
	res := C.avs_c_invoke_bool(e.api, e.env, fn, 0)
	defer C.avs_c_release_value(e.api, res)
	if C.avs_c_is_int(res) == 0 {
		return false
	}
	mode := int(C.avs_c_as_int(res))
	return mode > 0 && mode < 5
}

func (e *Engine) Distribute(c engine.Clip) (engine.Clip, error) {
	return e.invokeClip("Distributor", c)
}

// Close releases the script environment and unloads the library.
func (e *Engine) Close() error {
	if e.api == nil {
		return nil
	}
	if e.env != nil {
		C.avs_c_delete_env(e.api, e.env)
		e.env = nil
	}
	e.unload()
	return nil
}

func (e *Engine) unload() {
	C.avs_unload(e.api)
	C.free(unsafe.Pointer(e.api))
	e.api = nil
}

// takeClip turns an invoke result into a clip, consuming res.
func (e *Engine) takeClip(res C.AVS_Value) (*clip, error) {
	if C.avs_c_is_error(res) != 0 {
		msg := C.GoString(C.avs_c_as_error(res))
		C.avs_c_release_value(e.api, res)
		return nil, errors.New(msg)
	}
	if C.avs_c_is_clip(res) == 0 {
		C.avs_c_release_value(e.api, res)
		return nil, errors.New("didn't return a video clip")
	}
	c := &clip{
		engine: e,
		value:  res,
		handle: C.avs_c_take_clip(e.api, res, e.env),
	}
	c.info = c.readInfo()
	return c, nil
}

func (e *Engine) invokeClip(name string, in engine.Clip) (engine.Clip, error) {
	src, ok := in.(*clip)
	if !ok || src.released {
		return nil, fmt.Errorf("%s: not a live AviSynth clip", name)
	}
	fn := C.CString(name)
	defer C.free(unsafe.Pointer(fn))
	return e.takeClip(C.avs_c_invoke_clip(e.api, e.env, fn, src.value))
}

type clip struct {
	engine   *Engine
	value    C.AVS_Value
	handle   *C.AVS_Clip
	info     videoInfo
	released bool
}

func (c *clip) readInfo() videoInfo {
	var out [8]C.int
	var fps [2]C.uint
	C.avs_c_video_info(c.engine.api, c.handle, &out[0], &fps[0])
	return videoInfo{
		Width:            int(out[0]),
		Height:           int(out[1]),
		NumFrames:        int(out[2]),
		PixelType:        int32(out[3]),
		ImageType:        int32(out[4]),
		BitsPerComponent: int(out[5]),
		FPSNum:           uint32(fps[0]),
		FPSDen:           uint32(fps[1]),
	}
}

func (c *clip) Format() engine.ClipFormat {
	return c.info.format()
}

func (c *clip) Convert(req engine.ConvertRequest) (engine.Clip, error) {
	if c.released {
		return nil, errors.New("convert on released clip")
	}
	fn := C.CString(req.Name())
	defer C.free(unsafe.Pointer(fn))
	interlaced := C.int(0)
	if req.Interlaced {
		interlaced = 1
	}
	return c.engine.takeClip(C.avs_c_invoke_convert(c.engine.api, c.engine.env, fn, c.value, interlaced))
}

func (c *clip) Weave() (engine.Clip, error) {
	return c.engine.invokeClip("Weave", c)
}

func (c *clip) Frame(n int) (engine.Frame, error) {
	if c.released {
		return nil, errors.New("frame request on released clip")
	}
	var msg *C.char
	f := C.avs_c_get_frame(c.engine.api, c.handle, C.int(n), &msg)
	if msg != nil {
		if f != nil {
			C.avs_c_release_frame(c.engine.api, f)
		}
		return nil, errors.New(C.GoString(msg))
	}
	if f == nil {
		return nil, errors.New("engine returned no frame")
	}
	return &frame{clip: c, handle: f}, nil
}

func (c *clip) Release() {
	if c.released {
		return
	}
	c.released = true
	C.avs_c_release_clip(c.engine.api, c.handle)
	C.avs_c_release_value(c.engine.api, c.value)
}

type frame struct {
	clip     *clip
	handle   *C.AVS_VideoFrame
	released bool
}

// Plane returns a view of the engine's buffer for id. The view covers rows
// up to the last row's payload, not its trailing padding.
func (f *frame) Plane(id engine.PlaneID) ([]byte, int) {
	if f.released {
		return nil, 0
	}
	rows := f.clip.info.planeRows(id)
	if rows == 0 {
		return nil, 0
	}
	var pitch, rowSize C.int
	ptr := C.avs_c_plane(f.clip.engine.api, f.handle, C.int(planeSelector(id)), &pitch, &rowSize)
	if ptr == nil || pitch <= 0 {
		return nil, 0
	}
	n := (rows-1)*int(pitch) + int(rowSize)
	return unsafe.Slice((*byte)(unsafe.Pointer(ptr)), n), int(pitch)
}

func (f *frame) Release() {
	if f.released {
		return
	}
	f.released = true
	C.avs_c_release_frame(f.clip.engine.api, f.handle)
}
